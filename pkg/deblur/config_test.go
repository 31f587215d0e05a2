package deblur

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	c := NewConfig()
	c.PSFWidth = 16
	c.Layers = 13
	c.normalize()
	assert.Equal(t, 15, c.PSFWidth)
	assert.Equal(t, 12, c.Layers)

	// Already-valid parities pass through untouched.
	c.normalize()
	assert.Equal(t, 15, c.PSFWidth)
	assert.Equal(t, 12, c.Layers)
}

func TestValidate(t *testing.T) {
	good := NewConfig()
	require.NoError(t, good.validate())

	cases := []struct {
		label  string
		mangle func(*Config)
	}{
		{"tiny psf", func(c *Config) { c.PSFWidth = 1 }},
		{"too few layers", func(c *Config) { c.Layers = 0 }},
		{"no roots", func(c *Config) { c.MaxTopLevelNodes = 0 }},
		{"no threads", func(c *Config) { c.Threads = 0 }},
		{"bad disparity algo", func(c *Config) { c.DisparityAlgo = "sgbm" }},
		{"bad deconv algo", func(c *Config) { c.DeconvAlgo = "lucy-richardson" }},
	}
	for _, tc := range cases {
		c := NewConfig()
		tc.mangle(&c)
		err := c.validate()
		require.Error(t, err, tc.label)
		var cfgErr *ConfigurationError
		assert.ErrorAs(t, err, &cfgErr, tc.label)
	}
}

func TestLoadConfig(t *testing.T) {
	yaml := "psfwidth: 9\nlayers: 4\ndeconvalgo: irls\n"
	fn := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(yaml), 0644))

	c, err := LoadConfig(fn)
	require.NoError(t, err)

	// File values land, untouched defaults survive.
	assert.Equal(t, 9, c.PSFWidth)
	assert.Equal(t, 4, c.Layers)
	assert.Equal(t, "irls", c.DeconvAlgo)
	assert.Equal(t, 80, c.MaxDisparity)
	assert.Equal(t, "match", c.DisparityAlgo)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestAsYamlRoundTrips(t *testing.T) {
	c := NewConfig()
	fn := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(c.AsYaml()), 0644))

	back, err := LoadConfig(fn)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}
