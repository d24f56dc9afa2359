package evidence

import (
	"strings"
	"sync/atomic"
	"time"
)

// Grader assigns evidence levels using the current Rules.
// It is safe for concurrent use.
type Grader struct {
	rules atomic.Pointer[Rules]
	now   func() time.Time
}

// NewGrader returns a Grader using rules, or DefaultRules when nil.
func NewGrader(rules *Rules) *Grader {
	g := &Grader{now: time.Now}
	if rules == nil {
		rules = DefaultRules()
	}
	g.rules.Store(rules.clone())
	return g
}

// Rules returns a copy of the active rules.
func (g *Grader) Rules() *Rules { return g.rules.Load().clone() }

// SetRules validates and installs a new table.
func (g *Grader) SetRules(r *Rules) error {
	if err := r.Validate(); err != nil {
		return err
	}
	g.rules.Store(r.clone())
	return nil
}

// Grade grades a single passage. It never fails.
func (g *Grader) Grade(p Passage) Graded {
	r := g.rules.Load()
	now := g.now()

	level := LevelReference
	rule, known := r.Types[NormalizeType(p.DocumentType)]
	if known && rule.Level.Valid() {
		level = rule.Level
	}

	pub, hasDate := ParseDate(p.PublicationDate)

	stale := false
	if known && rule.TimeSensitive && hasDate && level > r.StaleCapLevel &&
		now.Sub(pub) > r.StaleAfter.Duration() && !isStaticTopic(r, p) {
		level = r.StaleCapLevel
		stale = true
	}

	info := r.Info(level)
	return Graded{
		Passage:          p,
		Level:            level,
		LevelName:        info.Name,
		LevelExplanation: info.Explanation,
		Score:            compositeScore(r, p, pub, hasDate, now),
		Stale:            stale,
	}
}

// GradeAll grades passages, dropping those with no content, and returns
// them in evidence order.
func (g *Grader) GradeAll(passages []Passage) []Graded {
	out := make([]Graded, 0, len(passages))
	for _, p := range passages {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		out = append(out, g.Grade(p))
	}
	Sort(out)
	return out
}

func isStaticTopic(r *Rules, p Passage) bool {
	haystack := strings.ToLower(p.Topic + " " + p.Title)
	for _, t := range r.StaticTopics {
		if t != "" && strings.Contains(haystack, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006-01", "2006/01", "2006"}

// ParseDate parses the publication date formats found in the knowledge base.
// Timestamps are truncated to the date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
