package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMetaRoundTrip(t *testing.T) {
	meta := map[string]any{
		"run":    "run-17",
		"epoch":  float64(3),
		"labels": []any{"a", "b"},
		"nested": map[string]any{"k": "v"},
	}

	doc, err := encodeMeta(meta)
	require.NoError(t, err)

	got, err := decodeMeta(doc)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestEncodeMetaNil(t *testing.T) {
	doc, err := encodeMeta(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(doc))
}

func TestEncodeMetaUnencodable(t *testing.T) {
	_, err := encodeMeta(map[string]any{"ch": make(chan int)})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDecodeMetaObject(t *testing.T) {
	meta, err := decodeMeta([]byte(`{"state": "done", "epoch": 9}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"state": "done", "epoch": float64(9)}, meta)
}

func TestDecodeMetaLegacyWrapped(t *testing.T) {
	// Older engines stored the document as a JSON string wrapping the
	// serialized object, needing one extra unwrap.
	meta, err := decodeMeta([]byte(`"{\"state\": \"done\"}"`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"state": "done"}, meta)
}

func TestDecodeMetaInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "syntax error", doc: `{not json`},
		{name: "empty document", doc: ``},
		{name: "array", doc: `[1, 2, 3]`},
		{name: "number", doc: `42`},
		{name: "null", doc: `null`},
		{name: "wrapped non-object", doc: `"[1, 2]"`},
		{name: "wrapped garbage", doc: `"not json at all"`},
		{name: "wrapped null", doc: `"null"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeMeta([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrMetaDecode)
		})
	}
}

func TestDecodeMetaEmptyObject(t *testing.T) {
	meta, err := decodeMeta([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, meta)
}
