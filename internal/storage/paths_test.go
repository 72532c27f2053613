package storage

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestObjectPath(t *testing.T) {
	tests := []struct {
		name    string
		uriRoot string
		uri     string
		want    string // relative to the store root
	}{
		{name: "slash root", uriRoot: "/", uri: "/jobs/run-17", want: "jobs/run-17"},
		{name: "no leading slash", uriRoot: "/", uri: "jobs/run-17", want: "jobs/run-17"},
		{name: "custom root", uriRoot: "/vault", uri: "/vault/jobs", want: "jobs"},
		{name: "custom root unprefixed", uriRoot: "/vault", uri: "/other/jobs", want: "other/jobs"},
		{name: "root itself", uriRoot: "/", uri: "/", want: ""},
		{name: "repeated separators", uriRoot: "/", uri: "//jobs///run-17", want: "jobs/run-17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Store{rootDir: "/data/vault", uriRoot: tt.uriRoot}
			want := filepath.Join("/data/vault", filepath.FromSlash(tt.want))
			assert.Equal(t, want, s.objectPath(tt.uri))
		})
	}
}

func TestJoinURI(t *testing.T) {
	assert.Equal(t, "/jobs/run-17", joinURI("/jobs", "run-17"))
	assert.Equal(t, "/jobs/run-17", joinURI("/jobs/", "run-17"))
	assert.Equal(t, "/run-17", joinURI("/", "run-17"))
}

func TestIsEngineTemp(t *testing.T) {
	id := uuid.NewString()

	assert.True(t, isEngineTemp("data_"+id))
	assert.True(t, isEngineTemp("meta_"+id))

	// Crash debris from engines that staged through the atomic-write
	// path carries a doubled suffix; it is still engine-owned.
	assert.True(t, isEngineTemp("data_"+id+"_"+uuid.NewString()))
	assert.True(t, isEngineTemp("meta_"+id+"_"+uuid.NewString()))

	assert.False(t, isEngineTemp("data"))
	assert.False(t, isEngineTemp("meta"))
	assert.False(t, isEngineTemp("data_"))
	assert.False(t, isEngineTemp("data_backup"))
	assert.False(t, isEngineTemp("data_"+id+"_"+id+"_"+id))
	assert.False(t, isEngineTemp("checkpoint_"+id))
	assert.False(t, isEngineTemp("latest"))
}

func TestValidateTag(t *testing.T) {
	assert.NoError(t, validateTag("latest"))
	assert.NoError(t, validateTag("archived-2026"))
	assert.NoError(t, validateTag("...")) // odd but harmless

	invalid := []string{
		"",
		".",
		"..",
		"data",
		"meta",
		"a/b",
		`a\b`,
		"data_" + uuid.NewString(),
		"tag\x00null",
	}
	for _, tag := range invalid {
		assert.ErrorIs(t, validateTag(tag), ErrInvalidArgument, "tag %q", tag)
	}
}

func TestValidateURI(t *testing.T) {
	assert.NoError(t, validateURI("/jobs/run-17"))
	assert.ErrorIs(t, validateURI(""), ErrInvalidArgument)
	assert.ErrorIs(t, validateURI("/jobs\x00"), ErrInvalidArgument)
}
