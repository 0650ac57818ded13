// Package audio groups the speaker front-end:
//
//   - pcm: 16-bit clips, WAV and raw file input
//   - resampler: conversion to 16 kHz mono
//   - fbank: log mel filterbank features in the model's (1, mels, frames) layout
package audio
