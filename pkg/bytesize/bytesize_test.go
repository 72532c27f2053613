package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"1KB", KB},
		{"1.5 GB", GB + GB/2},
		{"10Mi", 10 * MB},
		{"2T", 2 * TB},
		{"0", 0},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, "parse %q", tt.in)
		assert.Equal(t, tt.want, got, "parse %q", tt.in)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "10XB", "-5MB"} {
		_, err := Parse(in)
		assert.Error(t, err, "parse %q", in)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0 B", Format(0))
	assert.Equal(t, "512 B", Format(512))
	assert.Equal(t, "1.00 KB", Format(KB))
	assert.Equal(t, "2.50 MB", Format(MB*2+MB/2))
	assert.Equal(t, "1.00 TB", Format(TB))
}

func TestSizeUnmarshalYAML(t *testing.T) {
	var cfg struct {
		Max Size `yaml:"max"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("max: 10Mi"), &cfg))
	assert.Equal(t, int64(10*MB), cfg.Max.Bytes())

	require.NoError(t, yaml.Unmarshal([]byte("max: 4096"), &cfg))
	assert.Equal(t, int64(4096), cfg.Max.Bytes())

	err := yaml.Unmarshal([]byte("max: [1, 2]"), &cfg)
	assert.Error(t, err)
}
