package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/loopsched/internal/ir"
)

// marshalStrings converts an id or iname list to canonical JSON TEXT.
func marshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

// unmarshalStrings parses a JSON TEXT list. An empty list reads as nil.
func unmarshalStrings(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	return out, nil
}

// marshalSchedule converts a schedule to canonical JSON TEXT.
func marshalSchedule(s ir.Schedule) (string, error) {
	data, err := ir.MarshalCanonical(s)
	if err != nil {
		return "", fmt.Errorf("marshal schedule: %w", err)
	}
	return string(data), nil
}

// unmarshalSchedule parses the items column back into a schedule.
func unmarshalSchedule(data string) (ir.Schedule, error) {
	var s ir.Schedule
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	return s, nil
}
