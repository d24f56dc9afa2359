// Package embeddings turns passages and questions into vectors for the
// knowledge-base index.
//
// Providers: "fastembed" runs a local ONNX model (requires cgo), "tei" calls
// a HuggingFace text-embeddings-inference server, and "openai" calls any
// OpenAI-compatible /embeddings endpoint through langchaingo.
package embeddings
