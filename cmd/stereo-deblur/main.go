package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log"
	"os"

	"github.com/fkersting/stereo-deblur/pkg/deblur"
)

var (
	fConfig       string
	fPSFWidth     int
	fLayers       int
	fMaxTopLevel  int
	fMaxDisparity int
	fDeconv       string
	fThreads      int
	fColor        bool
	fTopLevelOnly bool
	fKernelFmt    string
	fOut          string
	fVerbosity    int
)

func init() {
	flag.StringVar(&fConfig, "config", "", "yaml config file (flags override it)")
	flag.IntVar(&fPSFWidth, "psfwidth", 15, "blur kernel window (forced odd)")
	flag.IntVar(&fLayers, "layers", 12, "number of depth layers (forced even)")
	flag.IntVar(&fMaxTopLevel, "maxtoplevel", 3, "max number of region-tree roots")
	flag.IntVar(&fMaxDisparity, "maxdisparity", 80, "disparity search bound in pixels")
	flag.StringVar(&fDeconv, "deconv", "fft", "solver for kernel selection: fft or irls")
	flag.IntVar(&fThreads, "threads", 4, "worker threads (including this one)")
	flag.BoolVar(&fColor, "color", false, "reconstruct in color")
	flag.BoolVar(&fTopLevelOnly, "toplevel", false, "coarse reconstruction from top-level kernels only")
	flag.StringVar(&fKernelFmt, "kernels", "kernel%d.png", "filename pattern for the top-level kernel images")
	flag.StringVar(&fOut, "out", "deblurred.png", "output filename")
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.Parse()

	log.Printf("stereo-deblur starting\n")
}

func loadImage(filename string) (image.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func main() {
	if flag.NArg() != 2 {
		log.Fatal("usage: stereo-deblur [flags] left.png right.png")
	}

	cfg := deblur.NewConfig()
	if fConfig != "" {
		var err error
		if cfg, err = deblur.LoadConfig(fConfig); err != nil {
			log.Fatalf("config %s: %v", fConfig, err)
		}
	}
	cfg.PSFWidth = fPSFWidth
	cfg.Layers = fLayers
	cfg.MaxTopLevelNodes = fMaxTopLevel
	cfg.MaxDisparity = fMaxDisparity
	cfg.DeconvAlgo = fDeconv
	cfg.Threads = fThreads
	cfg.Verbosity = fVerbosity

	left, err := loadImage(flag.Arg(0))
	if err != nil {
		log.Fatalf("left view %s: %v", flag.Arg(0), err)
	}
	right, err := loadImage(flag.Arg(1))
	if err != nil {
		log.Fatalf("right view %s: %v", flag.Arg(1), err)
	}

	dd, err := deblur.New(left, right, cfg)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Verbosity > 0 {
		log.Printf("configuration:-\n\n%s\n", dd.Config().AsYaml())
	}

	log.Printf("estimating disparity\n")
	if err := dd.EstimateDisparity(); err != nil {
		log.Fatal(err)
	}
	if err := dd.BuildRegionTree(); err != nil {
		log.Fatal(err)
	}
	if cfg.Verbosity > 1 {
		dd.Tree().DumpLayers(0, "layers-left.png")
		dd.Tree().DumpLayers(1, "layers-right.png")
	}

	// Top-level kernels come from an external estimator; we load one
	// kernel image per region-tree root.
	log.Printf("loading top-level kernels (%s)\n", fKernelFmt)
	err = dd.LoadTopLevelKernels(func(i int) (image.Image, error) {
		return loadImage(fmt.Sprintf(fKernelFmt, i))
	})
	if err != nil {
		log.Fatal(err)
	}

	if !fTopLevelOnly {
		log.Printf("estimating mid-level kernels on %d threads\n", cfg.Threads)
		if err := dd.EstimateMidLevelKernels(cfg.Threads); err != nil {
			log.Fatal(err)
		}
	}

	log.Printf("reconstructing\n")
	var out image.Image
	if fTopLevelOnly {
		out, err = dd.ReconstructTopLevel(deblur.Reference, cfg.Threads, fColor)
	} else {
		out, err = dd.ReconstructImage(deblur.Reference, cfg.Threads, fColor)
	}
	if err != nil {
		log.Fatal(err)
	}

	f, err := os.Create(fOut)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s\n", fOut)
}
