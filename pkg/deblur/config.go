package deblur

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/fkersting/stereo-deblur/pkg/deconv"
)

type Config struct {
	// PSFWidth is the blur kernel window; forced odd (downwards).
	PSFWidth int
	// Layers is the number of depth layers; forced even (downwards).
	// The PSF width should be larger than the per-layer disparity step.
	Layers int
	// MaxTopLevelNodes bounds the number of region-tree roots.
	MaxTopLevelNodes int

	// MaxDisparity bounds the block-matching search.
	MaxDisparity int
	// DisparityAlgo selects the matcher; only "match" is implemented.
	DisparityAlgo string

	// DeconvAlgo selects the solver used during kernel estimation and
	// candidate scoring: "fft" (fast, ringing) or "irls" (slow, clean).
	DeconvAlgo string

	// RegWeight is the gamma regularizer of the joint estimator.
	RegWeight float64
	// ReliabilityFactor scales the entropy-vs-peers reliability test;
	// both constants are empirical values from the original work.
	ReliabilityFactor float64

	Threads   int
	Verbosity int
}

func NewConfig() Config {
	return Config{
		PSFWidth:          15,
		Layers:            12,
		MaxTopLevelNodes:  3,
		MaxDisparity:      80,
		DisparityAlgo:     "match",
		DeconvAlgo:        "fft",
		RegWeight:         1.0,
		ReliabilityFactor: 0.2,
		Threads:           4,
	}
}

// LoadConfig reads a yaml file over the defaults.
func LoadConfig(filename string) (Config, error) {
	c := NewConfig()
	b, err := os.ReadFile(filename)
	if err != nil {
		return c, err
	}
	err = yaml.Unmarshal(b, &c)
	return c, err
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("can't marshal config yaml: %v", err)
	}
	return string(b)
}

// normalize forces the parameter parities the algorithm needs: an odd
// kernel window and an even layer count.
func (c *Config) normalize() {
	if c.PSFWidth%2 == 0 {
		c.PSFWidth--
	}
	if c.Layers%2 != 0 {
		c.Layers--
	}
}

func (c Config) validate() error {
	if c.PSFWidth < 3 {
		return &ConfigurationError{Reason: "psf width must be at least 3"}
	}
	if c.Layers < 2 {
		return &ConfigurationError{Reason: "need at least 2 depth layers"}
	}
	if c.MaxTopLevelNodes < 1 {
		return &ConfigurationError{Reason: "need at least 1 top-level node"}
	}
	if c.Threads < 1 {
		return &ConfigurationError{Reason: "need at least 1 thread"}
	}
	if c.DisparityAlgo != "match" {
		return &ConfigurationError{Reason: "unsupported disparity algorithm " + c.DisparityAlgo}
	}
	if _, err := deconv.New(c.DeconvAlgo); err != nil {
		return &ConfigurationError{Reason: "unsupported deconvolution algorithm " + c.DeconvAlgo}
	}
	return nil
}

// Solver builds the configured deconvolution solver.
func (c Config) Solver() (deconv.Solver, error) {
	return deconv.New(c.DeconvAlgo)
}
