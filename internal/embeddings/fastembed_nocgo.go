//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned by every FastEmbedProvider method in
// binaries built with CGO_ENABLED=0, where the ONNX runtime cannot load.
var ErrFastEmbedNotAvailable = errors.New("fastembed: built without cgo; set embeddings.provider to tei or openai")

// FastEmbedConfig mirrors the cgo build so NewProvider compiles unchanged.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is never constructed in non-cgo builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider fails; the returned error names the working providers.
func NewFastEmbedProvider(FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) Dimension() int { return 0 }

func (p *FastEmbedProvider) Close() error { return nil }
