// SPDX-License-Identifier: MPL-2.0

package merge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
)

// decodeObject parses a JSON object, keeping numbers as written.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("document is not a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON document")
	}
	return doc, nil
}

// encodeJSON renders v with sorted keys, unescaped HTML and a trailing newline.
func encodeJSON(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mergeJSON folds docs (upstream first) into one document using s.
func mergeJSON(s Strategy, docs [][]byte) ([]byte, error) {
	var merged map[string]any
	for i, data := range docs {
		doc, err := decodeObject(data)
		if err != nil {
			return nil, fmt.Errorf("contribution %d: %w", i, err)
		}
		if merged == nil {
			merged = doc
			continue
		}
		switch s.Mode {
		case FieldMerge:
			mergeFields(merged, doc, s.Fields)
		case RegistryMerge:
			mergeRegistry(merged, doc)
		case ShallowMerge:
			mergeShallow(merged, doc)
		case ListUnion:
			mergeLists(merged, doc, s.Fields)
		default:
			return nil, fmt.Errorf("unknown JSON merge mode %d", s.Mode)
		}
	}
	return encodeJSON(merged, "    ")
}

// mergeFields merges the entry maps under fields and replaces every other
// top-level key.
func mergeFields(dst, src map[string]any, fields []string) {
	for key, value := range src {
		if slices.Contains(fields, key) && mergeEntries(dst, key, value) {
			continue
		}
		dst[key] = value
	}
}

func mergeRegistry(dst, src map[string]any) {
	for key, value := range src {
		if mergeEntries(dst, key, value) {
			continue
		}
		dst[key] = value
	}
}

func mergeShallow(dst, src map[string]any) {
	for key, value := range src {
		dst[key] = value
	}
}

func mergeLists(dst, src map[string]any, fields []string) {
	for key, value := range src {
		next, ok := value.([]any)
		prev, had := dst[key].([]any)
		if !slices.Contains(fields, key) || !ok || !had {
			dst[key] = value
			continue
		}
		for _, item := range next {
			if !containsValue(prev, item) {
				prev = append(prev, item)
			}
		}
		dst[key] = prev
	}
}

// mergeEntries copies the entries of value into dst[key] when both are
// objects. It reports false when either side is not an object.
func mergeEntries(dst map[string]any, key string, value any) bool {
	next, ok := value.(map[string]any)
	if !ok {
		return false
	}
	prev, ok := dst[key].(map[string]any)
	if !ok {
		return false
	}
	for k, v := range next {
		prev[k] = v
	}
	return true
}

func containsValue(list []any, item any) bool {
	for _, existing := range list {
		if reflect.DeepEqual(existing, item) {
			return true
		}
	}
	return false
}
