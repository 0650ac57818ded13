package voiceprint

// Model extracts speaker embedding vectors from raw audio.
//
// Input is PCM16 signed little-endian, 16 kHz, mono. Output has length
// Dimension().
//
// Implementations must be safe for concurrent use.
type Model interface {
	// Extract computes a speaker embedding from PCM16 audio.
	Extract(audio []byte) ([]float32, error)

	// Dimension returns the embedding length.
	Dimension() int

	// Close releases resources. Extract fails afterwards.
	Close() error
}
