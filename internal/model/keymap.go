package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ubuntu/decorate"
)

// KeyMap maps canonical record keys to the keys a remote uses on the wire.
// Keys absent from the map are sent and read unchanged.
type KeyMap map[string]string

// WireKey returns the wire key for a canonical key.
func (km KeyMap) WireKey(key string) string {
	if w, ok := km[key]; ok {
		return w
	}
	return key
}

// Validate checks that every entry names a canonical key, that no wire key is empty,
// and that no two canonical keys end up on the same wire key.
func (km KeyMap) Validate() error {
	var errs error
	for k, w := range km {
		if !IsKey(k) {
			errs = errors.Join(errs, fmt.Errorf("unknown record key %q, expected one of %s", k, strings.Join(Keys(), ", ")))
		}
		if strings.TrimSpace(w) == "" {
			errs = errors.Join(errs, fmt.Errorf("empty wire key for record key %q", k))
		}
	}

	seen := make(map[string]string)
	for _, k := range Keys() {
		w := km.WireKey(k)
		if other, ok := seen[w]; ok {
			errs = errors.Join(errs, fmt.Errorf("record keys %q and %q both map to wire key %q", other, k, w))
			continue
		}
		seen[w] = k
	}

	return errs
}

type keyMapFile struct {
	Keys map[string]string `toml:"keys"`
}

// LoadKeyMap reads a key map from a TOML file with a single [keys] table.
func LoadKeyMap(path string) (km KeyMap, err error) {
	defer decorate.OnError(&err, "could not load key map %s", path)

	var f keyMapFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		entries := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			entries = append(entries, k.String())
		}
		slices.Sort(entries)
		return nil, fmt.Errorf("unexpected entries: %s", strings.Join(entries, ", "))
	}

	km = KeyMap(f.Keys)
	if err := km.Validate(); err != nil {
		return nil, err
	}
	return km, nil
}
