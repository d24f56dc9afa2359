// Package clarify decides whether a health question is specific enough to
// answer or needs one follow-up question first.
//
// The decision is rule based. A symptom taxonomy maps trigger phrases to the
// qualifier slots (location, duration, severity, ...) needed to tell cases
// apart; a message that names a category but satisfies fewer slots than the
// category requires is ambiguous. Slots may also be satisfied by recent user
// turns about the same symptom.
//
// A reply to a clarification question always proceeds, so a query is
// clarified at most once.
package clarify
