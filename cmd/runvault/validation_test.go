package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateObjectURI(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		errSubstr string // substring that must appear in error when wantErr is true
	}{
		// Valid URIs
		{name: "root", input: "/", wantErr: false},
		{name: "single segment", input: "/jobs", wantErr: false},
		{name: "nested", input: "/jobs/run-1/model", wantErr: false},
		{name: "trailing slash", input: "/jobs/run-1/", wantErr: false},
		{name: "dots inside segment", input: "/jobs/model.v2.json", wantErr: false},

		// Invalid URIs
		{name: "empty", input: "", wantErr: true, errSubstr: "cannot be empty"},
		{name: "relative", input: "jobs/run-1", wantErr: true, errSubstr: "must be absolute"},
		{name: "dot segment", input: "/jobs/./model", wantErr: true, errSubstr: ". or .. segments"},
		{name: "dotdot segment", input: "/jobs/../etc", wantErr: true, errSubstr: ". or .. segments"},
		{name: "leading dotdot", input: "/../etc", wantErr: true, errSubstr: ". or .. segments"},
		{name: "null byte", input: "/jobs/\x00run", wantErr: true, errSubstr: "null byte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateObjectURI(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errSubstr != "" {
					assert.Contains(t, err.Error(), tt.errSubstr, "error message should contain %q", tt.errSubstr)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTagName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		errSubstr string
	}{
		// Valid tags
		{name: "simple", input: "best", wantErr: false},
		{name: "with hyphen", input: "round-complete", wantErr: false},
		{name: "with dot", input: "v1.2", wantErr: false},
		{name: "uppercase", input: "RETIRED", wantErr: false},

		// Invalid tags
		{name: "empty", input: "", wantErr: true, errSubstr: "cannot be empty"},
		{name: "slash", input: "a/b", wantErr: true, errSubstr: "path separators"},
		{name: "backslash", input: `a\b`, wantErr: true, errSubstr: "path separators"},
		{name: "dot", input: ".", wantErr: true, errSubstr: "not a valid marker name"},
		{name: "dotdot", input: "..", wantErr: true, errSubstr: "not a valid marker name"},
		{name: "reserved data", input: "data", wantErr: true, errSubstr: "reserved"},
		{name: "reserved meta", input: "meta", wantErr: true, errSubstr: "reserved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTagName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errSubstr != "" {
					assert.Contains(t, err.Error(), tt.errSubstr, "error message should contain %q", tt.errSubstr)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseMetaPairs(t *testing.T) {
	t.Run("empty input returns nil", func(t *testing.T) {
		meta, err := parseMetaPairs(nil)
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("typed values", func(t *testing.T) {
		meta, err := parseMetaPairs([]string{
			"round=3",
			"loss=0.17",
			"done=true",
			"owner=alice",
			"note=hello world",
			"ref=null",
		})
		require.NoError(t, err)

		assert.Equal(t, float64(3), meta["round"])
		assert.Equal(t, 0.17, meta["loss"])
		assert.Equal(t, true, meta["done"])
		assert.Equal(t, "alice", meta["owner"])
		assert.Equal(t, "hello world", meta["note"])
		assert.Nil(t, meta["ref"])
	})

	t.Run("quoted value stays string", func(t *testing.T) {
		meta, err := parseMetaPairs([]string{`version="3"`})
		require.NoError(t, err)
		assert.Equal(t, "3", meta["version"])
	})

	t.Run("value may contain equals", func(t *testing.T) {
		meta, err := parseMetaPairs([]string{"formula=a=b"})
		require.NoError(t, err)
		assert.Equal(t, "a=b", meta["formula"])
	})

	t.Run("empty value", func(t *testing.T) {
		meta, err := parseMetaPairs([]string{"note="})
		require.NoError(t, err)
		assert.Equal(t, "", meta["note"])
	})

	t.Run("last duplicate wins", func(t *testing.T) {
		meta, err := parseMetaPairs([]string{"round=1", "round=2"})
		require.NoError(t, err)
		assert.Equal(t, float64(2), meta["round"])
	})

	t.Run("missing separator", func(t *testing.T) {
		_, err := parseMetaPairs([]string{"round"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "use key=value")
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := parseMetaPairs([]string{"=3"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key cannot be empty")
	})
}
