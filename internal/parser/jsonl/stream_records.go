// Package jsonl streams newline-delimited JSON records into typed values.
//
// Both source trees of the pipeline are NDJSON, but some exports wrap the
// records in a root array; DecodeRecords accepts either shape.
package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeRecords decodes every record in r into T.
//
// Accepted shapes:
//   - a stream of JSON objects (NDJSON / JSONL), the common case;
//   - a single root array of objects;
//   - a root array followed by trailing JSONL objects.
//
// onErr, when non-nil, is invoked with the 1-based record number before a
// decode error is returned. A decode error aborts the rest of the file;
// the caller decides whether that aborts the run.
func DecodeRecords[T any](ctx context.Context, r io.Reader, onErr func(record int, err error)) ([]T, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var out []T
	record := 0

	fail := func(err error) error {
		if onErr != nil {
			onErr(record+1, err)
		}
		return fmt.Errorf("jsonl: record %d: %w", record+1, err)
	}

	// Peek the first token so a root array can be streamed element by
	// element without buffering the whole file.
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		return nil, fail(err)
	}

	if d, ok := tok.(json.Delim); ok && d == '[' {
		for dec.More() {
			var v T
			if err := dec.Decode(&v); err != nil {
				return out, fail(err)
			}
			out = append(out, v)
			record++

			select {
			case <-ctx.Done():
				return out, ctx.Err()
			default:
			}
		}
		if end, err := dec.Token(); err != nil {
			return out, fail(err)
		} else if end != json.Delim(']') {
			return out, fail(fmt.Errorf("expected array end ']', got %v", end))
		}
		// Fall through: tolerate trailing JSONL objects after the array.
	} else if d, ok := tok.(json.Delim); ok && d == '{' {
		// Re-assemble the first object: the decoder has consumed its
		// opening brace, so materialize it token-wise.
		obj, err := materializeObject(dec)
		if err != nil {
			return nil, fail(err)
		}
		var v T
		if err := json.Unmarshal(obj, &v); err != nil {
			return nil, fail(err)
		}
		out = append(out, v)
		record++
	} else {
		return nil, fail(fmt.Errorf("unsupported root token %v (want object or array)", tok))
	}

	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		var v T
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fail(err)
		}
		out = append(out, v)
		record++
	}
}

// materializeObject re-serializes the object whose '{' has already been
// consumed, so it can be unmarshaled into the target type. Only the first
// record of a file can hit this path, so the extra round-trip is cheap.
func materializeObject(dec *json.Decoder) (json.RawMessage, error) {
	m := make(map[string]any)
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read object key: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("object key not a string (got %T)", kt)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode value for %q: %w", key, err)
		}
		m[key] = v
	}
	end, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read object end: %w", err)
	}
	if end != json.Delim('}') {
		return nil, fmt.Errorf("expected object end '}', got %v", end)
	}
	return json.Marshal(m)
}
