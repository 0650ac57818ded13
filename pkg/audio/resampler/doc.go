// Package resampler converts PCM clips to the 16 kHz mono format the speaker
// front-end expects, using a pure Go polyphase resampler.
//
//	clip, _ := pcm.ReadFile("utt.wav", pcm.Mono16K)
//	clip, err := resampler.ToMono16K(clip)
package resampler
