// Package resnet implements a residual convolutional speaker-embedding
// network: a stem, four stages of residual blocks, a pluggable temporal
// aggregator and a two-layer embedding head.
//
// # Architecture
//
//	(B, F, T) features
//	  → unsqueeze       (B, 1, F, T)
//	  → stem            conv3×3 1→m, BN, ReLU
//	  → layer1          m    channels, stride 1
//	  → layer2          2m   channels, stride 2
//	  → layer3          4m   channels, stride 2
//	  → layer4          8m   channels, stride 2
//	  → aggregator      (B, F/8 · 8m · expansion · n_stats)
//	  → seg_1           embed_a
//	  → ReLU, BN (no affine), seg_2   embed_b
//
// Channel widths are multiplied by the block expansion (1 for
// [Basic], 4 for [Bottleneck]). The frequency and time axes are both halved
// (rounding up) at each stride-2 stage boundary.
//
// # Depth presets
//
//	18   Basic       [2, 2, 2, 2]
//	34   Basic       [3, 4, 6, 3]
//	50   Bottleneck  [3, 4, 6, 3]
//	101  Bottleneck  [3, 4, 23, 3]
//	152  Bottleneck  [3, 8, 36, 3]
//
// # Thread Safety
//
// [Model.Forward] only reads parameters and may be called concurrently.
// [Model.SetParam] must not run concurrently with Forward.
package resnet
