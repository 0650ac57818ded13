package resnet

import "errors"

// Sentinel errors. Returned errors wrap one of these with context.
var (
	// ErrInvalidConfig is returned by New and Config.Validate for
	// unusable construction parameters.
	ErrInvalidConfig = errors.New("resnet: invalid config")

	// ErrChannelChain means a stage's input width does not match the
	// previous stage's output width.
	ErrChannelChain = errors.New("resnet: stage channel chain mismatch")

	// ErrAggregatorContract means the aggregator's declared or returned
	// shape disagrees with what the model was built for.
	ErrAggregatorContract = errors.New("resnet: aggregator contract mismatch")

	// ErrShapeMismatch means the input does not have shape (B, feat_dim, T).
	ErrShapeMismatch = errors.New("resnet: input shape mismatch")

	// ErrTooShort means the input has too few frames to survive the
	// backbone's downsampling for the configured aggregator.
	ErrTooShort = errors.New("resnet: input too short")

	// ErrUnknownParam is returned by SetParam for names the model does not own.
	ErrUnknownParam = errors.New("resnet: unknown parameter")
)
