package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const envPrefix = "FACECASCADE_"

// Config holds the settings shared by every subcommand. Values come from the
// environment (optionally a .env file) and are overridden by command-line flags.
type Config struct {
	Backend  string `validate:"oneof=onnx caffe"`
	ModelDir string `validate:"required"`
	ORTLib   string
	// Transposed selects the column-major weight layout of the MATLAB-trained models.
	Transposed bool

	MinFaceSize float64 `validate:"gte=1"`
	ScaleFactor float64 `validate:"gt=0,lt=1"`

	ProposalThreshold float32 `validate:"gte=0,lte=1"`
	RefineThreshold   float32 `validate:"gte=0,lte=1"`
	OutputThreshold   float32 `validate:"gte=0,lte=1"`

	Workers   int `validate:"gte=0"`
	BatchSize int `validate:"gte=0"`
	Threads   int `validate:"gte=0"`

	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFile  string

	Addr        string  `validate:"required"`
	RateLimit   float64 `validate:"gt=0"`
	RateBurst   int     `validate:"gt=0"`
	RedisAddr   string
	RedisDB     int `validate:"gte=0"`
	CacheTTLSec int `validate:"gte=0"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:           "onnx",
		ModelDir:          "models",
		MinFaceSize:       10,
		ScaleFactor:       0.709,
		ProposalThreshold: 0.6,
		RefineThreshold:   0.7,
		OutputThreshold:   0.7,
		LogLevel:          "info",
		Addr:              ":3000",
		RateLimit:         20,
		RateBurst:         40,
		CacheTTLSec:       300,
	}
}

// Load reads envFile when it exists, then FACECASCADE_* variables on top of the defaults.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	env := envReader{}

	env.str("BACKEND", &cfg.Backend)
	env.str("MODEL_DIR", &cfg.ModelDir)
	env.str("ORT_LIB", &cfg.ORTLib)
	env.boolean("TRANSPOSED", &cfg.Transposed)
	env.float64("MIN_FACE_SIZE", &cfg.MinFaceSize)
	env.float64("SCALE_FACTOR", &cfg.ScaleFactor)
	env.float32("PROPOSAL_THRESHOLD", &cfg.ProposalThreshold)
	env.float32("REFINE_THRESHOLD", &cfg.RefineThreshold)
	env.float32("OUTPUT_THRESHOLD", &cfg.OutputThreshold)
	env.integer("WORKERS", &cfg.Workers)
	env.integer("BATCH_SIZE", &cfg.BatchSize)
	env.integer("THREADS", &cfg.Threads)
	env.str("LOG_LEVEL", &cfg.LogLevel)
	env.str("LOG_FILE", &cfg.LogFile)
	env.str("ADDR", &cfg.Addr)
	env.float64("RATE_LIMIT", &cfg.RateLimit)
	env.integer("RATE_BURST", &cfg.RateBurst)
	env.str("REDIS_ADDR", &cfg.RedisAddr)
	env.integer("REDIS_DB", &cfg.RedisDB)
	env.integer("CACHE_TTL", &cfg.CacheTTLSec)

	if len(env.errs) > 0 {
		return Config{}, errors.Join(env.errs...)
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float64(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) float32(key string, dst *float32) {
	f := float64(*dst)
	e.float64(key, &f)
	*dst = float32(f)
}
