package fetcher

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeFeed decodes a JSON product feed. Accepts either a bare array of
// items or an object wrapping the array under a "products" key. Elements are
// decoded one at a time so large feeds never need a second in-memory copy.
func DecodeFeed(r io.Reader) ([]map[string]any, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, eris.New("json: empty feed")
		}
		return nil, eris.Wrap(err, "json: read opening token")
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, eris.Errorf("json: expected '[' or '{', got %v", tok)
	}

	switch delim {
	case '[':
		return decodeItems(decoder)
	case '{':
		return decodeWrappedFeed(decoder)
	default:
		return nil, eris.Errorf("json: expected '[' or '{', got %v", delim)
	}
}

// decodeItems reads array elements until the closing bracket. The decoder
// must be positioned just past the opening '['.
func decodeItems(decoder *json.Decoder) ([]map[string]any, error) {
	var items []map[string]any
	for decoder.More() {
		var item map[string]any
		if err := decoder.Decode(&item); err != nil {
			return nil, eris.Wrap(err, "json: decode element")
		}
		items = append(items, item)
	}

	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "json: read closing token")
	}
	return items, nil
}

// decodeWrappedFeed scans object keys looking for "products" and decodes its
// array value. Other keys are skipped.
func decodeWrappedFeed(decoder *json.Decoder) ([]map[string]any, error) {
	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, eris.Wrap(err, "json: read object key")
		}
		if delim, ok := tok.(json.Delim); ok && delim == '}' {
			return nil, eris.New(`json: feed object has no "products" key`)
		}

		key, ok := tok.(string)
		if !ok {
			return nil, eris.Errorf("json: expected object key, got %v", tok)
		}

		if key != "products" {
			// Skip this key's value entirely.
			var skip json.RawMessage
			if err := decoder.Decode(&skip); err != nil {
				return nil, eris.Wrapf(err, "json: skip %q value", key)
			}
			continue
		}

		tok, err = decoder.Token()
		if err != nil {
			return nil, eris.Wrap(err, "json: read products token")
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return nil, eris.Errorf(`json: "products" must be an array, got %v`, tok)
		}
		return decodeItems(decoder)
	}
}
