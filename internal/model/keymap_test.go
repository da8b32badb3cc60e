package model_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/recordfeed/internal/model"
)

func TestLoadKeyMap(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		file string

		want    model.KeyMap
		wantErr bool
	}{
		"Valid key map": {file: "valid.toml", want: model.KeyMap{"name": "title", "description": "summary"}},
		"Empty file":    {file: "empty.toml", want: nil},

		"Error on unknown record key":  {file: "unknown-key.toml", wantErr: true},
		"Error on duplicated wire key": {file: "duplicate-wire-key.toml", wantErr: true},
		"Error on empty wire key":      {file: "empty-wire-key.toml", wantErr: true},
		"Error on unexpected table":    {file: "extra-table.toml", wantErr: true},
		"Error on invalid syntax":      {file: "bad-syntax.toml", wantErr: true},
		"Error on non string wire key": {file: "bad-value.toml", wantErr: true},
		"Error on missing file":        {file: "does-not-exist.toml", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := model.LoadKeyMap(filepath.Join("testdata", "keymaps", tc.file))
			if tc.wantErr {
				require.Error(t, err, "LoadKeyMap should fail")
				return
			}
			require.NoError(t, err, "LoadKeyMap should not fail")
			assert.Equal(t, tc.want, got, "LoadKeyMap returned an unexpected key map")
		})
	}
}

func TestWireKey(t *testing.T) {
	t.Parallel()

	km := model.KeyMap{"name": "title"}
	assert.Equal(t, "title", km.WireKey("name"), "Mapped key should be translated")
	assert.Equal(t, "id", km.WireKey("id"), "Unmapped key should be kept")

	var empty model.KeyMap
	assert.Equal(t, "name", empty.WireKey("name"), "Nil key map should keep keys")
}

func TestRecordValue(t *testing.T) {
	t.Parallel()

	r := model.Record{ID: "42", Name: "Widget", Description: "A widget", Price: 2.5}
	for key, want := range map[string]string{"id": "42", "name": "Widget", "description": "A widget", "price": "2.5"} {
		got, ok := r.Value(key)
		assert.True(t, ok, "Value should know key %q", key)
		assert.Equal(t, want, got, "Value returned an unexpected value for %q", key)
	}

	for _, key := range model.Keys() {
		_, ok := r.Value(key)
		assert.True(t, ok, "Every canonical key should be filterable, %q is not", key)
	}
	_, ok := r.Value("color")
	assert.False(t, ok, "Unknown keys have no value")

	got, _ := model.Record{Price: 20}.Value("price")
	assert.Equal(t, "20", got, "Whole prices should not carry decimals")
	assert.ElementsMatch(t, []string{"id", "name", "description", "price"}, model.Keys())
}

func TestResult(t *testing.T) {
	t.Parallel()

	ok := model.Ok(model.Record{ID: "1"})
	v, err := ok.Get()
	require.NoError(t, err)
	assert.Equal(t, "1", v.ID)
	assert.False(t, ok.Failed())

	failed := model.Fail[model.Record](model.ErrMissingKey)
	_, err = failed.Get()
	require.ErrorIs(t, err, model.ErrMissingKey)
	assert.True(t, failed.Failed())
}
