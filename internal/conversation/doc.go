// Package conversation defines the turns exchanged in a health dialogue and
// helpers for windowing the history that feeds clarification and prompts.
//
// Turns are values; once appended to a history they are never modified.
// History helpers always return copies so callers cannot mutate stored
// session state through a returned slice.
package conversation
