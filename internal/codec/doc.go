// Package codec implements the pixel-level collaborators of the compressor:
// source decoding, SVG rasterization, preprocessing (rotation), processing
// (resize, quantize) and the encoder registry.
//
// Every call takes the stage's cancellation token. CPU work runs on a
// bounded worker pool; when the token is signalled the call returns the
// cancellation cause immediately and the late result is dropped.
package codec
