package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"galsynth/internal/cosmo"
	"galsynth/pkg/background"
	"galsynth/pkg/config"
	"galsynth/pkg/fits"
	"galsynth/pkg/frame"
	"galsynth/pkg/pipeline"
)

func main() {
	configPath := flag.String("config", "galsynth.yaml", "YAML configuration file")
	inputPath := flag.String("input", "", "Input FITS image (one band, microJy/sr)")
	band := flag.String("band", "r", "Photometric band of the input image")
	outputPath := flag.String("output", "synthetic.fits", "Output FITS filename")
	seed := flag.Uint64("seed", 0, "Random seed override (0: use config)")
	pixelKpc := flag.Float64("pixel-kpc", 0, "Input pixel scale in kpc/px (0: read PIXKPC header)")
	profilePlot := flag.String("profile-plot", "", "Petrosian ratio curve PNG (overrides config)")
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *seed != 0 {
		cfg.Realism.RandomSeed = *seed
	}
	if *profilePlot != "" {
		cfg.Output.ProfilePlot = *profilePlot
	}

	if _, err := os.Stat(*inputPath); os.IsNotExist(err) {
		log.Fatalf("%v: %s", pipeline.ErrInputNotFound, *inputPath)
	}

	// Cosmological distances are computed once, outside the pipeline.
	cosmology, err := cosmo.Descriptor(cfg.Cosmology.Redshift, cfg.Cosmology.H0, cfg.Cosmology.OmegaM, cfg.Cosmology.OmegaV)
	if err != nil {
		log.Fatalf("Cosmology: %v", err)
	}

	input, err := loadInputPlane(*inputPath, *pixelKpc, cosmology)
	if err != nil {
		log.Fatalf("Failed to load input image: %v", err)
	}

	// Background tiles are loaded once per run; multi-band batches reuse
	// the same fixed mosaics.
	registry := background.Registry{}
	for b, ref := range cfg.Backgrounds {
		tile, err := fits.LoadTile(ref.Path, ref.ZeroPoint)
		if err != nil {
			log.Fatalf("Failed to load background tile for band %q: %v", b, err)
		}
		registry[b] = tile
	}

	pl := pipeline.New(pipeline.Params{
		Band: *band,
		Telescope: frame.Telescope{
			PSFFWHMArcsec:    cfg.Telescope.PSFFWHMArcsec,
			PixelScaleArcsec: cfg.Telescope.PixelScaleArcsec,
		},
		SNLimit:                cfg.Realism.SNLimit,
		SkySigma:               cfg.Realism.SkySigma,
		Seed:                   cfg.Realism.RandomSeed,
		PetrosianScaleConstant: cfg.Realism.PetrosianScaleConstant,
		CanonicalPixelCount:    cfg.Realism.CanonicalPixelCount,
		PetrosianRadiusKpc:     cfg.Realism.PetrosianRadiusKpc,
		FixedSeed:              cfg.Realism.FixedSeed,
		OverflowTolerance:      cfg.Realism.OverflowTolerance,
		MaxBackgroundAttempts:  cfg.Realism.MaxBackgroundAttempts,
		EnablePSF:              cfg.Stages.PSF,
		EnableRebin:            cfg.Stages.Rebin,
		EnableNoise:            cfg.Stages.Noise,
		EnableFOVResize:        cfg.Stages.FOVResize,
		EnableBackground:       cfg.Stages.Background,
		RebinToTarget:          cfg.Stages.RebinToTarget,
		Verbose:                cfg.Output.Verbose,
	}, cosmology, registry)

	fmt.Printf("Adding observational realism to %s (band %s, z=%.3f)...\n", *inputPath, *band, cosmology.Redshift)
	result, err := pl.Run(input)
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	fmt.Printf("\nPipeline summary:\n")
	fmt.Printf("  input grid:        %d px (%.4g kpc/px)\n", result.Input.N, result.Input.PixelScaleKpc)
	fmt.Printf("  final grid:        %d px (%.4g kpc/px)\n", result.Final.N, result.Final.PixelScaleKpc)
	fmt.Printf("  effective sigma:   %.3f px\n", result.EffectivePSFSigmaPx)
	fmt.Printf("  sky sigma:         %.4g\n", result.SkySigma)
	fmt.Printf("  petrosian radius:  %.3f kpc (degenerate=%v)\n", result.Petrosian.RadiusKpc, result.Petrosian.Degenerate)
	fmt.Printf("  background:        applied=%v failed=%v seed=%d\n", result.BGApplied, result.BGFailed, result.SeedUsed)

	if cfg.Output.ProfilePlot != "" && result.Petrosian.Radii != nil {
		if err := result.Petrosian.SaveRatioPlot(cfg.Output.ProfilePlot); err != nil {
			log.Printf("Warning: %v", err)
		} else {
			fmt.Printf("Petrosian profile plot saved to: %s\n", cfg.Output.ProfilePlot)
		}
	}

	if err := writeResult(*outputPath, *band, cfg, cosmology, result); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
	fmt.Printf("Synthetic image saved to: %s\n", *outputPath)
}

// loadInputPlane reads the idealized flux image and tags it with its scale
// metadata. The loader collaborator is expected to have produced a plane in
// microjansky per steradian; the physical pixel scale comes from the PIXKPC
// header unless overridden on the command line.
func loadInputPlane(path string, pixelKpc float64, cosmology frame.Cosmology) (*frame.Plane, error) {
	img, err := fits.ReadImage(path)
	if err != nil {
		return nil, err
	}
	if img.W != img.H {
		return nil, fmt.Errorf("input image must be square, got %dx%d", img.W, img.H)
	}
	if pixelKpc <= 0 {
		v, ok := img.GetDouble("PIXKPC")
		if !ok {
			return nil, fmt.Errorf("input carries no PIXKPC header; pass -pixel-kpc")
		}
		pixelKpc = v
	}
	pixelArcsec := pixelKpc / cosmology.KpcPerArcsec
	return frame.NewPlane(img.Data, img.W, pixelArcsec, pixelKpc, frame.UnitMicroJanskyPerSr)
}

// writeResult converts the final plane to calibrated nanomaggies and
// persists it with the run metadata in the header.
func writeResult(path, band string, cfg *config.Config, cosmology frame.Cosmology, result *pipeline.Result) error {
	out, err := frame.MicroJyPerSrToNanomaggies(result.Final, frame.ABZeroPointNanomaggie)
	if err != nil {
		return err
	}

	cards := []fits.Card{
		{Key: "IMUNIT", Value: "NMAGGIE", Comment: "approx 3.63e-6 Jy"},
		{Key: "ABABSZP", Value: frame.ABZeroPointNanomaggie, Comment: "For Final Image"},
		{Key: "PIXSCALE", Value: out.PixelScaleArcsec, Comment: "For Final Image, arcsec"},
		{Key: "PIXORIG", Value: result.Input.PixelScaleArcsec, Comment: "For Original Image, arcsec"},
		{Key: "PIXKPC", Value: out.PixelScaleKpc, Comment: "KPC"},
		{Key: "ORIGKPC", Value: result.Input.PixelScaleKpc, Comment: "For Original Image, KPC"},
		{Key: "NPIX", Value: out.N},
		{Key: "NPIXORIG", Value: result.Input.N},
		{Key: "REDSHIFT", Value: cosmology.Redshift},
		{Key: "LUMDIST", Value: cosmology.LumDistMpc, Comment: "MPC"},
		{Key: "ANGDIST", Value: cosmology.AngDiamDistMpc, Comment: "MPC"},
		{Key: "PSCALE", Value: cosmology.KpcPerArcsec, Comment: "KPC"},
		{Key: "H0", Value: cosmology.H0},
		{Key: "WM", Value: cosmology.OmegaM},
		{Key: "WV", Value: cosmology.OmegaV},
		{Key: "PSFFWHM", Value: cfg.Telescope.PSFFWHMArcsec, Comment: "arcsec"},
		{Key: "TPIX", Value: cfg.Telescope.PixelScaleArcsec, Comment: "arcsec"},
		{Key: "FILTER", Value: band},
		{Key: "RPETRO", Value: result.Petrosian.RadiusKpc, Comment: "KPC"},
		{Key: "SEED", Value: result.SeedUsed},
		{Key: "BGFAILED", Value: result.BGFailed},
	}
	return fits.WriteImage(path, out.Data, out.N, out.N, cards)
}
