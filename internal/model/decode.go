package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// ErrMissingKey is returned when a required wire key is absent or null.
var ErrMissingKey = errors.New("missing required key")

// DecodeError is returned when a payload does not match the record shape.
// Decoding never returns a partially filled record alongside it.
type DecodeError struct {
	// Index is the position of the offending element in a collection, -1 when not applicable.
	Index int
	// Key is the wire key at fault, when known.
	Key string
	Err error
}

// NewDecodeError wraps err as a DecodeError that is not tied to any element.
func NewDecodeError(err error) *DecodeError {
	return &DecodeError{Index: -1, Err: err}
}

func (e *DecodeError) Error() string {
	msg := "decode failed"
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s at element %d", msg, e.Index)
	}
	if e.Key != "" {
		msg = fmt.Sprintf("%s for key %q", msg, e.Key)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder decodes wire JSON into records, translating keys with its KeyMap.
type Decoder struct {
	keys KeyMap
}

// NewDecoder returns a Decoder using km. A nil KeyMap means wire keys are the canonical ones.
func NewDecoder(km KeyMap) Decoder {
	return Decoder{keys: km}
}

// DecodeOne decodes a single JSON object.
func (d Decoder) DecodeOne(data []byte) (Record, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Record{}, NewDecodeError(err)
	}
	return d.decodeObject(-1, v)
}

// DecodeMany decodes a JSON array of objects. Any invalid element fails the whole payload.
func (d Decoder) DecodeMany(data []byte) ([]Record, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, NewDecodeError(err)
	}

	elems, ok := v.([]any)
	if !ok {
		return nil, NewDecodeError(fmt.Errorf("expected a JSON array, got %s", jsonKind(v)))
	}

	records := make([]Record, 0, len(elems))
	for i, e := range elems {
		r, err := d.decodeObject(i, e)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (d Decoder) decodeObject(index int, v any) (Record, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Record{}, &DecodeError{Index: index, Err: fmt.Errorf("expected a JSON object, got %s", jsonKind(v))}
	}

	canonical := make(map[string]any, len(fields))
	for _, f := range fields {
		w := d.keys.WireKey(f.key)
		val, present := obj[w]
		if f.required && (!present || val == nil) {
			return Record{}, &DecodeError{Index: index, Key: w, Err: ErrMissingKey}
		}
		if present {
			canonical[f.key] = val
		}
	}

	var r Record
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &r,
		ErrorUnused: true,
	})
	if err != nil {
		return Record{}, &DecodeError{Index: index, Err: err}
	}
	if err := dec.Decode(canonical); err != nil {
		return Record{}, &DecodeError{Index: index, Err: err}
	}
	return r, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
