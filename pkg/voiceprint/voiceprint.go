// Package voiceprint turns speech into speaker embeddings and compares them.
//
// # Pipeline
//
//  1. Audio is brought to PCM16 16 kHz mono (see audio/resampler).
//  2. [ResNetModel] computes fbank features and runs the ResNet network.
//  3. [Cosine] scores two embeddings; [Hasher] maps an embedding to a short
//     locality-sensitive label such as "voice:A3F8".
//
// Embeddings from one model are only comparable with embeddings from the
// same model configuration and parameters.
package voiceprint

import "errors"

var (
	// ErrClosed is returned by Extract after Close.
	ErrClosed = errors.New("voiceprint: model is closed")

	// ErrDimension is returned when vectors of different lengths meet.
	ErrDimension = errors.New("voiceprint: dimension mismatch")

	// ErrZeroVector is returned when a vector with zero norm is scored.
	ErrZeroVector = errors.New("voiceprint: zero vector")
)

// VoiceLabel returns the label form of a voice hash: "voice:{hash}".
func VoiceLabel(hash string) string {
	return "voice:" + hash
}
