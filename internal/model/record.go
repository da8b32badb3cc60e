// Package model holds the records fetched from the remote and the rules to decode them from the wire.
package model

import (
	"slices"
	"strconv"
)

// Record is one remote object, decoded.
//
// The mapstructure tags are the canonical keys. A KeyMap translates them to the keys a given
// remote uses on the wire.
type Record struct {
	ID          string  `mapstructure:"id"`
	Name        string  `mapstructure:"name"`
	Description string  `mapstructure:"description"`
	Price       float64 `mapstructure:"price"`
}

type field struct {
	key      string
	required bool
}

// fields lists every canonical key of Record, in declaration order.
var fields = []field{
	{key: "id", required: true},
	{key: "name", required: true},
	{key: "description"},
	{key: "price"},
}

// Keys returns the canonical keys of a Record.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.key)
	}
	return keys
}

// IsKey reports whether key is a canonical Record key.
func IsKey(key string) bool {
	return slices.ContainsFunc(fields, func(f field) bool { return f.key == key })
}

// Value returns the value of the canonical key as a string, for filtering and display.
// Every key of Keys has a value.
func (r Record) Value(key string) (string, bool) {
	switch key {
	case "id":
		return r.ID, true
	case "name":
		return r.Name, true
	case "description":
		return r.Description, true
	case "price":
		return strconv.FormatFloat(r.Price, 'f', -1, 64), true
	}
	return "", false
}
