package conversation

import "fmt"

// History is an ordered, oldest-first list of turns.
type History []Turn

// Validate checks every turn, reporting the first bad index.
func (h History) Validate() error {
	for i, t := range h {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns an independent copy.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Append returns a new history with turns added; h is left untouched.
func (h History) Append(turns ...Turn) History {
	out := make(History, 0, len(h)+len(turns))
	out = append(out, h...)
	return append(out, turns...)
}

// Last returns the most recent n turns (all of them when n <= 0 or n >= len).
func (h History) Last(n int) History {
	if n <= 0 || n >= len(h) {
		return h.Clone()
	}
	return h[len(h)-n:].Clone()
}

// RecentUser returns the content of up to n most recent user turns,
// newest first.
func (h History) RecentUser(n int) []string {
	var out []string
	for i := len(h) - 1; i >= 0 && len(out) < n; i-- {
		if h[i].Role == RoleUser {
			out = append(out, h[i].Content)
		}
	}
	return out
}

// LastAssistant returns the most recent assistant turn, if any.
func (h History) LastAssistant() (Turn, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == RoleAssistant {
			return h[i], true
		}
	}
	return Turn{}, false
}

// Trim drops the oldest turns so at most max remain, keeping
// user/assistant pairs aligned by never starting on an assistant turn.
// The latest pair always survives, so max is raised to 2.
func (h History) Trim(max int) History {
	if max <= 0 || len(h) <= max {
		return h.Clone()
	}
	if max < 2 {
		max = 2
		if len(h) <= max {
			return h.Clone()
		}
	}
	start := len(h) - max
	for start < len(h) && h[start].Role == RoleAssistant {
		start++
	}
	return h[start:].Clone()
}
