package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidQuery indicates an empty or oversized query, or a bad k.
	ErrInvalidQuery = errors.New("invalid query")
)

const (
	maxK = 1000
	// maxQueryRunes fits a rewritten query: two full chat messages plus
	// the joining text. Counted in runes so CJK input is not penalised.
	maxQueryRunes = 10000
)

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document is a knowledge-base passage to be indexed.
//
// Metadata values are flat strings; the knowledge base stores source_name,
// source_url, title, document_type, publication_date and topic here.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult is a passage returned by similarity search.
type SearchResult struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store is the interface for knowledge-base index operations.
type Store interface {
	// AddDocuments embeds and upserts documents, returning their ids.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search returns up to k passages most similar to query, most similar first.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// Count returns the number of indexed passages.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// ValidateCollectionName validates a collection name.
// Rejects uppercase, special chars, path traversal and spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// validateSearch checks query and k, returning k capped at maxK.
func validateSearch(query string, k int) (int, error) {
	if k <= 0 {
		return 0, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}
	if query == "" {
		return 0, fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if n := utf8.RuneCountInString(query); n > maxQueryRunes {
		return 0, fmt.Errorf("%w: query is %d characters, maximum is %d", ErrInvalidQuery, n, maxQueryRunes)
	}
	if k > maxK {
		k = maxK
	}
	return k, nil
}
