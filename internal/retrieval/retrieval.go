// Package retrieval adapts the vector index to evidence passages.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/fyrsmithlabs/healthqa/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("healthqa.retrieval")

// ErrUnavailable wraps every index failure, timeouts included.
var ErrUnavailable = errors.New("retrieval unavailable")

// Metadata keys stored alongside each knowledge-base passage.
const (
	MetaSourceName      = "source_name"
	MetaSourceURL       = "source_url"
	MetaTitle           = "title"
	MetaDocumentType    = "document_type"
	MetaPublicationDate = "publication_date"
	MetaTopic           = "topic"
)

// Config configures a Retriever.
type Config struct {
	// Timeout bounds each Retrieve call. Zero means no extra bound.
	Timeout time.Duration
	// MinScore drops passages below this similarity.
	MinScore float64
}

// Retriever is a stateless adapter over a vectorstore.Store.
type Retriever struct {
	store  vectorstore.Store
	config Config
	logger *zap.Logger
}

// New returns a Retriever.
func New(store vectorstore.Store, cfg Config, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, config: cfg, logger: logger}
}

// Retrieve returns at most k passages ranked by descending similarity.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]evidence.Passage, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", vectorstore.ErrInvalidQuery, k)
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	results, err := r.search(ctx, query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("retrieval failed", zap.Error(err), zap.Duration("timeout", r.config.Timeout))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	passages := make([]evidence.Passage, 0, len(results))
	for _, res := range results {
		p, ok := toPassage(res)
		if !ok {
			r.logger.Debug("dropping invalid passage", zap.String("id", res.ID))
			continue
		}
		if p.Similarity < r.config.MinScore {
			continue
		}
		passages = append(passages, p)
	}

	slices.SortStableFunc(passages, func(a, b evidence.Passage) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if len(passages) > k {
		passages = passages[:k]
	}

	span.SetAttributes(attribute.Int("results_count", len(passages)))
	return passages, nil
}

// search runs the store query but returns as soon as ctx ends, even when
// the store ignores cancellation.
func (r *Retriever) search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	type outcome struct {
		results []vectorstore.SearchResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.store.Search(ctx, query, k)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.results, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func toPassage(res vectorstore.SearchResult) (evidence.Passage, bool) {
	content := strings.TrimSpace(res.Content)
	if content == "" {
		return evidence.Passage{}, false
	}
	md := res.Metadata
	return evidence.Passage{
		Content:         content,
		SourceName:      md[MetaSourceName],
		SourceURL:       md[MetaSourceURL],
		Title:           md[MetaTitle],
		DocumentType:    md[MetaDocumentType],
		PublicationDate: md[MetaPublicationDate],
		Topic:           md[MetaTopic],
		Similarity:      clamp(float64(res.Score)),
	}, true
}

func clamp(s float64) float64 {
	switch {
	case s != s:
		return 0
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Metadata returns the store metadata for a passage, omitting empty fields.
func Metadata(p evidence.Passage) map[string]string {
	md := make(map[string]string, 6)
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			md[k] = v
		}
	}
	set(MetaSourceName, p.SourceName)
	set(MetaSourceURL, p.SourceURL)
	set(MetaTitle, p.Title)
	set(MetaDocumentType, p.DocumentType)
	set(MetaPublicationDate, p.PublicationDate)
	set(MetaTopic, p.Topic)
	return md
}
