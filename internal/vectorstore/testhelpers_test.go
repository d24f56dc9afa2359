package vectorstore

import (
	"context"
	"hash/fnv"
	"strings"
)

// bagEmbedder embeds text as a bag of hashed runes so passages sharing
// characters with the query score higher.
type bagEmbedder struct {
	dim  int
	fail error
}

func (e *bagEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	for _, r := range strings.ToLower(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(string(r)))
		v[h.Sum32()%uint32(e.dim)] += 1
	}
	v[0] += 0.01
	return v
}

func (e *bagEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *bagEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return e.vector(text), nil
}
