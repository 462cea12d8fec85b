package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/alvmarrod/proxy-harvest/internal/scheduler"
)

// writeResults stores the aggregate map as a JSON object keyed by item.
// Payloads that are JSON are embedded as-is, anything else as a string.
func writeResults(path string, results scheduler.Results) error {
	out := make(map[string]json.RawMessage, len(results))
	for item, payload := range results {
		key := strconv.Itoa(item)
		if json.Valid(payload) {
			out[key] = json.RawMessage(payload)
			continue
		}
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return fmt.Errorf("failed to encode item %d: %w", item, err)
		}
		out[key] = quoted
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}
