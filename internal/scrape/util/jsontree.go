package util

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FindFirstKey scans a raw JSON document depth-first and returns the value
// of the first occurrence of key in document order. Page layouts behind this
// search are not contractually stable, so "nothing found" is an ordinary
// outcome, not an error.
func FindFirstKey(raw []byte, key string) (json.RawMessage, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, ok, err := findKey(dec, key)
	if err != nil {
		return nil, false
	}
	return v, ok
}

func findKey(dec *json.Decoder, key string) (json.RawMessage, bool, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, false, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		// scalar, nothing to descend into
		return nil, false, nil
	}

	switch delim {
	case '{':
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, false, err
			}
			k, _ := kt.(string)
			if k == key {
				var raw json.RawMessage
				if err := dec.Decode(&raw); err != nil {
					return nil, false, err
				}
				return raw, true, nil
			}
			if raw, found, err := findKey(dec, key); err != nil || found {
				return raw, found, err
			}
		}
		if _, err := dec.Token(); err != nil { // consume '}'
			return nil, false, err
		}
	case '[':
		for dec.More() {
			if raw, found, err := findKey(dec, key); err != nil || found {
				return raw, found, err
			}
		}
		if _, err := dec.Token(); err != nil { // consume ']'
			return nil, false, err
		}
	}
	return nil, false, nil
}

// ScalarString renders a raw JSON scalar as text. Markup in string values is
// stripped. Objects, arrays and nulls report false.
func ScalarString(raw json.RawMessage) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return StripHTML(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}
