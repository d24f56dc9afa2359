// Package vectorstore stores knowledge-base passages and serves nearest
// neighbour search over them.
//
// Two backends are provided: ChromemStore, an embedded persistent index that
// needs no external service, and QdrantStore, which talks to a Qdrant server
// over gRPC. Both embed text through an Embedder supplied by the caller.
package vectorstore
