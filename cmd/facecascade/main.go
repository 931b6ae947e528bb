package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facecascade/internal/config"
	"github.com/dudu/facecascade/internal/detector"
	"github.com/dudu/facecascade/internal/logger"
	"github.com/dudu/facecascade/internal/pipeline"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

type command struct {
	name  string
	usage string
	run   func(cfg config.Config, args []string) error
}

var commands = []command{
	{"detect", "detect faces in a still image (default)", runDetect},
	{"camera", "detect faces on a live camera feed", runCamera},
	{"serve", "serve detection over HTTP and WebSocket", runServe},
	{"inspect", "print the inputs and outputs of an ONNX model", runInspect},
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	name, args := "detect", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}

	for _, cmd := range commands {
		if cmd.name == name {
			if err := cmd.run(cfg, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, "facecascade - MTCNN face and landmark detection\n\n")
	fmt.Fprintf(os.Stderr, "Usage: facecascade [command] [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", cmd.name, cmd.usage)
	}
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  facecascade -image group.jpg\n")
	fmt.Fprintf(os.Stderr, "  facecascade detect -image group.jpg -backend caffe -models ./mtcnn -json -\n")
	fmt.Fprintf(os.Stderr, "  facecascade camera -device 0\n")
	fmt.Fprintf(os.Stderr, "  facecascade serve -addr :8080\n")
}

// newFlagSet registers the options every command shares, defaulting to the loaded config.
func newFlagSet(name string, cfg *config.Config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)

	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Inference backend: onnx or caffe")
	fs.StringVar(&cfg.Backend, "b", cfg.Backend, "Inference backend (shorthand)")
	fs.StringVar(&cfg.ModelDir, "models", cfg.ModelDir, "Directory holding det1..det3 models")
	fs.StringVar(&cfg.ORTLib, "ortlib", cfg.ORTLib, "Path to the ONNX Runtime shared library")
	fs.BoolVar(&cfg.Transposed, "transposed", cfg.Transposed, "Models use column-major (MATLAB) weights")
	fs.Float64Var(&cfg.MinFaceSize, "minsize", cfg.MinFaceSize, "Minimum face size in pixels")
	fs.Float64Var(&cfg.ScaleFactor, "factor", cfg.ScaleFactor, "Pyramid scale factor in (0,1)")
	thresholds := []struct {
		name string
		dst  *float32
	}{
		{"pthresh", &cfg.ProposalThreshold},
		{"rthresh", &cfg.RefineThreshold},
		{"othresh", &cfg.OutputThreshold},
	}
	for _, t := range thresholds {
		fs.Var(float32Value{t.dst}, t.name, "Stage score threshold")
	}
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Pyramid levels scanned in parallel (0 = one per CPU)")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Patches per refine/output forward pass (0 = all)")
	fs.IntVar(&cfg.Threads, "threads", cfg.Threads, "ONNX Runtime intra-op threads (0 = default)")
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "Log level")
	fs.StringVar(&cfg.LogFile, "logfile", cfg.LogFile, "Rotating log file (empty = console only)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: facecascade %s [options]\n\nOptions:\n", name)
		fs.PrintDefaults()
	}
	return fs
}

// setup validates the final configuration and builds the logger.
func setup(cfg config.Config) (*logrus.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return logger.New(logger.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  100,
		MaxAgeDays: 7,
		MaxBackups: 3,
		Compress:   true,
	})
}

func newPipeline(cfg config.Config, log *logrus.Logger) (*pipeline.Pipeline, error) {
	log.Infof("Loading models (backend: %s)...", cfg.Backend)
	p, err := pipeline.New(pipeline.Config{
		Backend:           pipeline.Backend(cfg.Backend),
		ModelDir:          cfg.ModelDir,
		ORTLibPath:        cfg.ORTLib,
		Transposed:        cfg.Transposed,
		ProposalThreshold: cfg.ProposalThreshold,
		RefineThreshold:   cfg.RefineThreshold,
		OutputThreshold:   cfg.OutputThreshold,
		Workers:           cfg.Workers,
		BatchSize:         cfg.BatchSize,
		Threads:           cfg.Threads,
		Logger:            log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return p, nil
}

func scanParams(cfg config.Config) detector.ScanParams {
	return detector.ScanParams{MinFaceSize: cfg.MinFaceSize, ScaleFactor: cfg.ScaleFactor}
}

// float32Value lets the flag package fill float32 config fields.
type float32Value struct{ p *float32 }

func (v float32Value) String() string {
	if v.p == nil {
		return ""
	}
	return fmt.Sprint(*v.p)
}

func (v float32Value) Set(s string) error {
	var f float64
	if _, err := fmt.Sscan(s, &f); err != nil {
		return err
	}
	*v.p = float32(f)
	return nil
}
