package pipeline

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facecascade/internal/detector"
	"github.com/dudu/facecascade/internal/inference"
)

// Config holds pipeline configuration
type Config struct {
	Backend    Backend
	ModelDir   string
	ORTLibPath string
	// Transposed wraps every network for column-major (MATLAB-trained) weights.
	Transposed bool

	// Stage score thresholds, 0 keeps the stage default (0.6, 0.7, 0.7).
	ProposalThreshold float32
	RefineThreshold   float32
	OutputThreshold   float32

	Workers   int // proposal scales scanned in parallel, 0 for one per CPU
	BatchSize int // refine/output patches per forward pass, 0 for all
	Threads   int // ONNX Runtime intra-op threads, 0 for the default

	Logger logrus.FieldLogger
}

// Pipeline owns the stage networks and the cascade running them.
type Pipeline struct {
	config   Config
	cascade  *detector.Cascade
	networks []stageNetwork
	log      logrus.FieldLogger

	mu         sync.Mutex
	lastTiming detector.Timing
}

// New loads the three stage models and builds the cascade
func New(config Config) (*Pipeline, error) {
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	files, err := ResolveModels(config.ModelDir, config.Backend)
	if err != nil {
		return nil, err
	}

	if config.Backend == BackendONNX {
		if err := inference.Initialize(config.ORTLibPath); err != nil {
			return nil, fmt.Errorf("%w: %v", detector.ErrModel, err)
		}
	}

	p := &Pipeline{config: config, log: log}

	layouts := []inference.Layout{inference.ProposalLayout, inference.RefineLayout, inference.OutputLayout}
	for i, stage := range files.stages() {
		net, err := p.load(stage, layouts[i])
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("%w: %v", detector.ErrModel, err)
		}
		p.networks = append(p.networks, net)
	}

	proposal, refine, output := stageConfigs(config, p.network(0), p.network(1), p.network(2))
	p.cascade, err = detector.NewCascade(proposal, refine, output, detector.WithLogger(log))
	if err != nil {
		p.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"backend":    config.Backend,
		"models":     config.ModelDir,
		"transposed": config.Transposed,
	}).Info("models loaded")

	return p, nil
}

// stageConfigs applies the configured thresholds and batching to the stage defaults.
// A zero threshold keeps the stage default.
func stageConfigs(config Config, proposalNet, refineNet, outputNet detector.Network) (proposal, refine, output detector.StageConfig) {
	proposal = detector.DefaultProposalConfig
	proposal.Network = proposalNet
	proposal.Threshold = threshold(config.ProposalThreshold, proposal.Threshold)
	proposal.Workers = config.Workers

	refine = detector.DefaultRefineConfig
	refine.Network = refineNet
	refine.Threshold = threshold(config.RefineThreshold, refine.Threshold)
	refine.BatchSize = config.BatchSize

	output = detector.DefaultOutputConfig
	output.Network = outputNet
	output.Threshold = threshold(config.OutputThreshold, output.Threshold)
	output.BatchSize = config.BatchSize
	return proposal, refine, output
}

func threshold(configured, fallback float32) float32 {
	if configured == 0 {
		return fallback
	}
	return configured
}

func (p *Pipeline) load(files StageFiles, layout inference.Layout) (stageNetwork, error) {
	if p.config.Backend == BackendCaffe {
		return inference.NewCaffeNet(files.Model, files.Weights, layout, p.log)
	}
	return inference.NewSession(files.Model, layout, p.config.Threads, p.log)
}

func (p *Pipeline) network(i int) detector.Network {
	if p.config.Transposed {
		return inference.Transposed{Network: p.networks[i]}
	}
	return p.networks[i]
}

// DetectTimed finds faces in img and reports the per-stage timing
func (p *Pipeline) DetectTimed(img image.Image, params detector.ScanParams) ([]detector.Face, detector.Timing, error) {
	faces, timing, err := p.cascade.DetectTimed(img, params)
	if err == nil {
		p.mu.Lock()
		p.lastTiming = timing
		p.mu.Unlock()
	}
	return faces, timing, err
}

// Detect finds faces in img
func (p *Pipeline) Detect(img image.Image, params detector.ScanParams) ([]detector.Face, error) {
	faces, _, err := p.DetectTimed(img, params)
	return faces, err
}

// Process detects faces on a camera frame
func (p *Pipeline) Process(frame *gocv.Mat, params detector.ScanParams) ([]detector.Face, error) {
	img, err := frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detector.ErrInvalidImage, err)
	}

	faces, err := p.Detect(img, params)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	return faces, nil
}

// LastTiming returns timing from the last successful detection
func (p *Pipeline) LastTiming() detector.Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTiming
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	var errs []error

	for _, net := range p.networks {
		if err := net.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.networks = nil

	if p.config.Backend == BackendONNX {
		if err := inference.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cleanup errors: %w", err)
	}
	return nil
}
