package scoring

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/config"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
	"carbon-scribe/blue-carbon/blue-carbon-backend/pkg/geospatial"
)

// FixedValidator always returns the same score
type FixedValidator struct {
	Score float64
}

func (v FixedValidator) Validate(ctx context.Context, project *projects.Project) (float64, error) {
	return v.Score, nil
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(ctx context.Context, project *projects.Project) (float64, error)

func (f ValidatorFunc) Validate(ctx context.Context, project *projects.Project) (float64, error) {
	return f(ctx, project)
}

// SimulatedValidator draws scores uniformly from [0.85, 0.99)
type SimulatedValidator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

const (
	simulatedFloor = 0.85
	simulatedSpan  = 0.14
)

// NewSimulatedValidator creates a simulated validator. A nil source uses a randomly seeded PCG.
func NewSimulatedValidator(src rand.Source) *SimulatedValidator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &SimulatedValidator{rng: rand.New(src)}
}

func (v *SimulatedValidator) Validate(ctx context.Context, project *projects.Project) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return simulatedFloor + v.rng.Float64()*simulatedSpan, nil
}

// GeoFencedValidator scores plantations outside the eligible region as zero
// and defers to the wrapped validator otherwise
type GeoFencedValidator struct {
	inner  Validator
	region orb.Geometry
}

// NewGeoFencedValidator wraps inner with a region check
func NewGeoFencedValidator(inner Validator, region orb.Geometry) *GeoFencedValidator {
	return &GeoFencedValidator{inner: inner, region: region}
}

func (v *GeoFencedValidator) Validate(ctx context.Context, project *projects.Project) (float64, error) {
	if !geospatial.Contains(v.region, geospatial.ToPoint(project.GPS.Lat, project.GPS.Lng)) {
		return 0, nil
	}
	return v.inner.Validate(ctx, project)
}

// NewValidatorFromConfig builds the validator selected by the scoring configuration
func NewValidatorFromConfig(cfg config.ScoringConfig, logger *zap.Logger) (Validator, error) {
	var v Validator
	switch cfg.Mode {
	case "fixed":
		v = FixedValidator{Score: cfg.FixedScore}
	case "simulated":
		v = NewSimulatedValidator(nil)
	case "http":
		v = NewHTTPValidator(cfg.ValidatorURL, nil, cfg.MaxRetries, logger)
	default:
		return nil, fmt.Errorf("unknown scoring mode %q", cfg.Mode)
	}

	if cfg.RegionGeoJSONPath != "" {
		data, err := os.ReadFile(cfg.RegionGeoJSONPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read eligible region: %w", err)
		}
		region, err := geospatial.ParseRegion(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse eligible region: %w", err)
		}
		v = NewGeoFencedValidator(v, region)
	}
	return v, nil
}
