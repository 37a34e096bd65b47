// Package graph defines the record shape returned by the graph store.
package graph

import "encoding/json"

// Record is one row returned by a graph query, keyed by return alias.
type Record map[string]any

// MarshalRecords renders records as a compact JSON array for embedding in
// model prompts. Marshal failures degrade to an empty array rather than
// aborting the prompt build.
func MarshalRecords(records []Record) string {
	if len(records) == 0 {
		return "[]"
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "[]"
	}
	return string(data)
}
