// Package mcp exposes the health assistant as MCP tools over stdio.
//
// Tools:
//   - health_ask: run one chat turn (clarification or cited answer)
//   - grading_levels: list evidence levels and their explanations
package mcp
