package evidence

import (
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Score weights: authority, recency and document keywords.
const (
	authorityWeight = 0.5
	recencyWeight   = 0.3
	keywordWeight   = 0.2
	maxKeywordBonus = 20
	// unknownRecency is used when no date is available or parseable.
	unknownRecency = 70
)

func compositeScore(r *Rules, p Passage, pub time.Time, hasDate bool, now time.Time) float64 {
	auth := authorityScore(r, p.SourceURL, p.SourceName)
	rec := float64(unknownRecency)
	if hasDate {
		rec = recencyScore(now.Sub(pub))
	}
	bonus := math.Min(keywordBonus(r, p.Title, p.Content), maxKeywordBonus)
	total := auth*authorityWeight + rec*recencyWeight + bonus*keywordWeight
	return math.Round(total*100) / 100
}

// extractDomain returns the host without a www. prefix, or "".
func extractDomain(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// authorityScore looks the domain up exactly, then by parent domain, then
// applies source-name hints.
func authorityScore(r *Rules, sourceURL, sourceName string) float64 {
	score := r.DefaultAuthority
	if domain := extractDomain(sourceURL); domain != "" {
		best := -1
		for _, a := range r.Authorities {
			d := strings.ToLower(a.Domain)
			if domain == d || strings.HasSuffix(domain, "."+d) {
				// Prefer the most specific match.
				if len(d) > best {
					best = len(d)
					score = a.Score
				}
			}
		}
	}

	name := strings.ToLower(sourceName)
	for _, hint := range r.NameHints {
		for _, kw := range hint.Keywords {
			if containsWord(name, strings.ToLower(kw)) {
				score = math.Max(score, hint.Score)
				break
			}
		}
	}
	return score
}

// containsWord reports whether kw occurs in s without being glued to
// further ASCII letters or digits, so "who" does not match "whole".
// CJK keywords have no such boundary and match as substrings.
func containsWord(s, kw string) bool {
	if kw == "" {
		return false
	}
	for off := 0; off <= len(s)-len(kw); {
		i := strings.Index(s[off:], kw)
		if i < 0 {
			return false
		}
		start, end := off+i, off+i+len(kw)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !(isASCIIWord(before) && isASCIIWord(firstRune(kw))) &&
			!(isASCIIWord(after) && isASCIIWord(lastRune(kw))) {
			return true
		}
		off = start + 1
	}
	return false
}

func isASCIIWord(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

func recencyScore(age time.Duration) float64 {
	days := age.Hours() / 24
	switch {
	case days < 365:
		return 95
	case days < 730:
		return 85
	case days < 1825:
		return 75
	default:
		return math.Max(60, 80-(days/365)*2)
	}
}

func keywordBonus(r *Rules, title, content string) float64 {
	text := strings.ToLower(title + " " + content)
	bonus := 0.0
	for _, kb := range r.KeywordBonuses {
		if kb.Keyword != "" && strings.Contains(text, strings.ToLower(kb.Keyword)) {
			bonus = math.Max(bonus, kb.Bonus)
		}
	}
	return bonus
}
