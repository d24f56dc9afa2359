// Package evidence grades retrieved knowledge-base passages.
//
// Each passage receives an evidence level from 1 (reference only) to 4
// (high), derived from its document type through a rule table, then capped
// when time-sensitive content has gone stale. Grading never fails: unknown
// types fall back to level 1.
//
// A composite evidence score (source authority, recency, document keywords)
// is reported alongside the level for display. It never changes the level.
//
// Rules live in Rules and may be loaded from YAML and hot-reloaded with a
// RulesWatcher; the Grader swaps rule sets atomically so in-flight grades
// always see one consistent table.
package evidence
