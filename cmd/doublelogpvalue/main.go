// Command doublelogpvalue replaces every voxel x of a NIfTI image with
// ln(-ln(x)), optionally restricted to a mask.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"doublelogpvalue/internal/logging"
	"doublelogpvalue/internal/models"
	"doublelogpvalue/internal/telemetry"
	"doublelogpvalue/pkg/config"
	"doublelogpvalue/pkg/nifti"
	"doublelogpvalue/pkg/transform"
	"doublelogpvalue/pkg/visualization"
)

// options holds the parsed command line.
type options struct {
	inputFile  string
	outputFile string
	maskFile   string
	numThreads int

	configPath       string
	writeConfig      string
	regionsPerWorker int
	metricsFile      string
	extractSlices    bool
	slicesDir        string
	logLevel         string
	logJSON          bool

	// set records the flags given explicitly, by long name
	set map[string]bool
}

// aliases maps shorthand flags to their long names.
var aliases = map[string]string{
	"i": "input-file",
	"o": "output-file",
	"m": "mask-file",
	"T": "num-threads",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the tool and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v for argument config\n", err)
		return 1
	}
	opts.applyTo(cfg)

	if opts.writeConfig != "" {
		return writeConfig(cfg, opts.writeConfig, stdout, stderr)
	}

	if err := opts.requireFiles(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger := logging.New(stderr, logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err := process(ctx, opts, cfg, logger, stdout); err != nil {
		logger.Error("cli", err, "double-log transform failed", nil)
		return 1
	}
	return 0
}

// writeConfig saves cfg to path. Without any file, environment or flag
// override the result is the default configuration.
func writeConfig(cfg *config.Config, path string, stdout, stderr io.Writer) int {
	if *cfg == *config.DefaultConfig() {
		if err := config.CreateDefaultConfigFile(path); err != nil {
			fmt.Fprintf(stderr, "Error: %v for argument write-config\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Default configuration written to: %s\n", path)
		return 0
	}

	if err := config.SaveConfig(cfg, path); err != nil {
		fmt.Fprintf(stderr, "Error: %v for argument write-config\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Configuration written to: %s\n", path)
	return 0
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("doublelogpvalue", flag.ContinueOnError)
	fs.SetOutput(stderr)

	for _, name := range []string{"i", "input-file"} {
		fs.StringVar(&opts.inputFile, name, "", "Input image (required)")
	}
	for _, name := range []string{"o", "output-file"} {
		fs.StringVar(&opts.outputFile, name, "", "Output image (required, .nii or .nii.gz)")
	}
	for _, name := range []string{"m", "mask-file"} {
		fs.StringVar(&opts.maskFile, name, "", "Mask image; voxels where the mask is 0 are set to 0")
	}
	for _, name := range []string{"T", "num-threads"} {
		fs.IntVar(&opts.numThreads, name, 1, "Number of threads")
	}
	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.writeConfig, "write-config", "", "Write the effective configuration to this file and exit")
	fs.IntVar(&opts.regionsPerWorker, "regions-per-worker", 1, "Regions per thread; more gives finer load balancing")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	fs.BoolVar(&opts.extractSlices, "extract-slices", false, "Save JPEG previews of the output along all axes")
	fs.StringVar(&opts.slicesDir, "slices-dir", "slices", "Directory for JPEG previews")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.logJSON, "log-json", false, "Log JSON lines instead of console output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected positional argument %q", fs.Arg(0))
	}

	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if long, ok := aliases[name]; ok {
			name = long
		}
		opts.set[name] = true
	})
	return opts, nil
}

// requireFiles reports the first missing required argument.
func (o *options) requireFiles() error {
	if o.inputFile == "" {
		return fmt.Errorf("required argument missing for argument input-file")
	}
	if o.outputFile == "" {
		return fmt.Errorf("required argument missing for argument output-file")
	}
	return nil
}

// applyTo overrides cfg with the flags given on the command line.
func (o *options) applyTo(cfg *config.Config) {
	if o.set["num-threads"] {
		cfg.Processing.NumThreads = o.numThreads
	}
	if o.set["regions-per-worker"] {
		cfg.Processing.RegionsPerWorker = o.regionsPerWorker
	}
	if o.set["metrics-file"] {
		cfg.Output.MetricsFile = o.metricsFile
	}
	if o.set["extract-slices"] {
		cfg.Output.ExtractSlices = o.extractSlices
	}
	if o.set["slices-dir"] {
		cfg.Output.SlicesDir = o.slicesDir
	}
	if o.set["log-level"] {
		cfg.Log.Level = o.logLevel
	}
	if o.set["log-json"] {
		cfg.Log.JSON = o.logJSON
	}
}

// process loads the images, runs the transform and writes the results.
func process(ctx context.Context, opts *options, cfg *config.Config, logger *logging.Logger, stdout io.Writer) error {
	input, err := nifti.ReadVolume(opts.inputFile)
	if err != nil {
		return fmt.Errorf("failed to read input image: %w", err)
	}
	logger.Info("cli", "input loaded", logging.Fields{
		"path":    opts.inputFile,
		"size":    input.Size,
		"spacing": input.Spacing,
	})

	var mask *models.MaskVolume
	if opts.maskFile != "" {
		mask, err = nifti.ReadMask(opts.maskFile)
		if err != nil {
			return fmt.Errorf("failed to read mask image: %w", err)
		}
		if !mask.Compatible(input.Geometry) && mask.SameSize(input.Geometry) {
			logger.Warning("cli", "mask spacing, origin or orientation differ from input; matching by index", logging.Fields{
				"mask": opts.maskFile,
			})
		}
	}

	metrics := telemetry.New()
	engine := transform.NewEngine(&transform.Params{
		NumWorkers:       cfg.Processing.NumThreads,
		RegionsPerWorker: cfg.Processing.RegionsPerWorker,
		Progress:         metrics,
		Logger:           logger,
	})

	startTime := time.Now()
	output, err := engine.Transform(ctx, input, mask)
	if err != nil {
		return fmt.Errorf("transform failed: %w", err)
	}
	elapsed := time.Since(startTime)
	metrics.ObserveRun(engine.NumRegions(input.Geometry), elapsed)

	if err := nifti.WriteVolume(opts.outputFile, output); err != nil {
		return fmt.Errorf("failed to write output image: %w", err)
	}

	summary := transform.Summarize(output, mask)
	metrics.SetVoxelClass("masked", summary.Masked)
	metrics.SetVoxelClass("finite", summary.Finite)
	metrics.SetVoxelClass("nan", summary.NaN)
	metrics.SetVoxelClass("pos_inf", summary.PosInf)
	metrics.SetVoxelClass("neg_inf", summary.NegInf)
	if summary.NaN+summary.PosInf+summary.NegInf > 0 {
		logger.Warning("cli", "input has voxels outside (0, 1); non-finite values written", logging.Fields{
			"nan":     summary.NaN,
			"pos_inf": summary.PosInf,
			"neg_inf": summary.NegInf,
		})
	}

	fmt.Fprintf(stdout, "Double-log transform completed in %.3f seconds using %d threads\n",
		elapsed.Seconds(), cfg.Processing.NumThreads)
	fmt.Fprintf(stdout, "Output saved to: %s\n", opts.outputFile)
	fmt.Fprintf(stdout, "Voxels: %d (masked out: %d)\n", summary.Voxels, summary.Masked)
	fmt.Fprintf(stdout, "Finite: %d  NaN: %d  +Inf: %d  -Inf: %d\n",
		summary.Finite, summary.NaN, summary.PosInf, summary.NegInf)
	if summary.Finite > 0 {
		fmt.Fprintf(stdout, "Range: [%.6f, %.6f]  Mean: %.6f  StdDev: %.6f\n",
			summary.Min, summary.Max, summary.Mean, summary.StdDev)
	}

	if cfg.Output.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			logger.Warning("cli", "failed to write metrics", logging.Fields{"error": err.Error()})
		}
	}

	if cfg.Output.ExtractSlices {
		viewer := visualization.NewViewer(output)
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.SlicesDir, axis)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				logger.Warning("cli", "failed to save slices", logging.Fields{"axis": axis, "error": err.Error()})
				continue
			}
			fmt.Fprintf(stdout, "Saved %s-axis slices to: %s\n", axis, axisDir)
		}
	}

	return nil
}
