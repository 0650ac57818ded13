// Package enroll stores speaker embeddings and verifies new utterances
// against them.
//
// Each enrolled speaker is one msgpack-encoded [Record] in BadgerDB, keyed
// by "speaker:{name}". The record holds the unit-length centroid of all
// embeddings enrolled so far, so verification is a single cosine score.
//
// Records carry the tag of the model that produced them. A store refuses
// to mix embeddings from different model tags.
package enroll

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a speaker is not enrolled.
	ErrNotFound = errors.New("enroll: speaker not found")

	// ErrModelMismatch is returned when an embedding comes from a model
	// other than the one a record was built with.
	ErrModelMismatch = errors.New("enroll: model mismatch")

	// ErrEmpty is returned for an empty speaker name or no embeddings.
	ErrEmpty = errors.New("enroll: nothing to enroll")
)

// Record is one enrolled speaker.
type Record struct {
	ID         string    `msgpack:"id" json:"id" yaml:"id"`
	Speaker    string    `msgpack:"speaker" json:"speaker" yaml:"speaker"`
	Model      string    `msgpack:"model" json:"model" yaml:"model"`
	Embedding  []float32 `msgpack:"embedding" json:"embedding,omitempty" yaml:"embedding,omitempty"`
	Utterances int       `msgpack:"utterances" json:"utterances" yaml:"utterances"`
	VoiceHash  string    `msgpack:"voice_hash,omitempty" json:"voice_hash,omitempty" yaml:"voice_hash,omitempty"`
	CreatedAt  time.Time `msgpack:"created_at" json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `msgpack:"updated_at" json:"updated_at" yaml:"updated_at"`
}

// Decision is the outcome of scoring one utterance against one speaker.
type Decision struct {
	Speaker   string  `json:"speaker" yaml:"speaker" msgpack:"speaker"`
	Score     float32 `json:"score" yaml:"score" msgpack:"score"`
	Threshold float32 `json:"threshold" yaml:"threshold" msgpack:"threshold"`
	Accept    bool    `json:"accept" yaml:"accept" msgpack:"accept"`
}
