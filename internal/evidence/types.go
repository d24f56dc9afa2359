package evidence

import (
	"cmp"
	"slices"
)

// Level is an evidence trust level; higher is stronger.
type Level int

const (
	LevelReference Level = 1
	LevelLow       Level = 2
	LevelMedium    Level = 3
	LevelHigh      Level = 4
)

// Valid reports whether l is within 1..4.
func (l Level) Valid() bool { return l >= LevelReference && l <= LevelHigh }

// Passage is a retrieved knowledge-base chunk with provenance metadata.
type Passage struct {
	Content    string `json:"content"`
	SourceName string `json:"source_name"`
	SourceURL  string `json:"source_url,omitempty"`
	Title      string `json:"title,omitempty"`
	// DocumentType is e.g. guideline, encyclopedia, forum.
	DocumentType string `json:"document_type"`
	// PublicationDate is kept as supplied (YYYY, YYYY-MM, YYYY-MM-DD or YYYY/MM/DD).
	PublicationDate string `json:"publication_date,omitempty"`
	Topic           string `json:"topic,omitempty"`
	// Similarity is in [0,1].
	Similarity float64 `json:"similarity_score"`
}

// Graded is a Passage with its evidence grade.
type Graded struct {
	Passage
	Level            Level   `json:"evidence_level"`
	LevelName        string  `json:"evidence_level_name"`
	LevelExplanation string  `json:"level_explanation"`
	Score            float64 `json:"evidence_score"`
	// Stale is set when the recency cap lowered the level.
	Stale bool `json:"stale,omitempty"`
}

// Sort orders evidence by descending level, then descending similarity.
// The sort is stable so equal items keep retrieval order.
func Sort(items []Graded) {
	slices.SortStableFunc(items, func(a, b Graded) int {
		if c := cmp.Compare(b.Level, a.Level); c != 0 {
			return c
		}
		return cmp.Compare(b.Similarity, a.Similarity)
	})
}

// IsSorted reports whether items satisfy the Sort order.
func IsSorted(items []Graded) bool {
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if cur.Level > prev.Level {
			return false
		}
		if cur.Level == prev.Level && cur.Similarity > prev.Similarity {
			return false
		}
	}
	return true
}
