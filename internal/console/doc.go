// Package console implements the developer console: named commands that take
// a JSON parameter object and report a JSON-friendly result.
//
// The memory commands mirror the memory substrate API:
//
//	remember  {"text": "...", "conversation_id": "...", "tags": []}
//	search    {"query": "...", "top_k": 5}
//	inject    {"conversation_id": "...", "max_memories": 10}
//
// Execute never returns an error. A failed command yields a Result with
// status "error" and an output of {"success": false, "error": "..."}; a
// successful one carries the handler output plus an "executionTime" field.
package console
