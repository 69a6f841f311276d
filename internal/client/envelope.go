package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// envelope is a top-level JSON object with its key order preserved. The
// backend's wrapper keys are matched in the order it sent them.
type envelope = orderedmap.OrderedMap[string, json.RawMessage]

func decodeObject(data []byte) (*envelope, error) {
	obj := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// UnwrapCollection extracts the record array from a collection response. The
// backend may answer with a bare array or with an object wrapping it. Inside
// an object the array is taken from, in order: a key matching the entity
// (underscore removed, exact, or singular) or one of extraKeys, then the first
// array-valued key. Anything else yields an empty collection.
func UnwrapCollection(body []byte, entity string, extraKeys ...string) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []map[string]any{}, nil
	}
	if trimmed[0] == '[' {
		return decodeRecords(trimmed)
	}
	if trimmed[0] != '{' {
		return []map[string]any{}, nil
	}

	obj, err := decodeObject(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	compact := strings.Replace(entity, "_", "", 1)
	singular := entity
	if len(entity) > 1 {
		singular = entity[:len(entity)-1]
	}
	matches := func(key string) bool {
		if strings.Contains(key, compact) || key == entity || key == singular {
			return true
		}
		for _, k := range extraKeys {
			if key == k {
				return true
			}
		}
		return false
	}

	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		if matches(pair.Key) {
			if isArray(pair.Value) {
				return decodeRecords(pair.Value)
			}
			break
		}
	}
	if raw, ok := obj.Get("data"); ok && isArray(raw) {
		return decodeRecords(raw)
	}
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		if isArray(pair.Value) {
			return decodeRecords(pair.Value)
		}
	}
	return []map[string]any{}, nil
}

// decodeRecords keeps only the object elements of a JSON array.
func decodeRecords(raw []byte) ([]map[string]any, error) {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}
