package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/docuflow-inc/docuflow-engine/pkg/apperrors"
	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// Tuning holds the hot-reloadable engine knobs: dimension weights, the
// per-method bonus/penalty tables, routing thresholds and cache settings.
// Loaded from a standalone YAML file so it can change without a restart.
type Tuning struct {
	// Weights maps each confidence dimension to its weight (0-1). Weights
	// should sum to 1.0; the calculator renormalizes with a warning if not.
	Weights map[models.Dimension]float64 `yaml:"weights"`

	// Adjustments are the signed per-method bonuses and penalties.
	Adjustments Adjustments `yaml:"adjustments"`

	// Routing thresholds. quick_review must be strictly below auto_approve.
	Routing RoutingThresholds `yaml:"routing"`

	// FieldReviewThreshold flags individual mapped fields whose confidence
	// falls below it as requiring review.
	FieldReviewThreshold float64 `yaml:"field_review_threshold"`

	// HistoricalMinSample is the sample count under which the historical
	// accuracy dimension takes the small-sample penalty.
	HistoricalMinSample int `yaml:"historical_min_sample"`

	// CacheTTLMinutes is the rule-set cache expiry.
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`

	// FetchTimeoutMillis bounds each configuration-store fetch inside the
	// resolver; a timeout degrades to "no configuration at that scope".
	FetchTimeoutMillis int `yaml:"fetch_timeout_ms"`
}

// Adjustments holds the signed bonus/penalty values applied by the
// dimension scoring functions.
type Adjustments struct {
	FormatExactMatch      float64 `yaml:"format_exact_match"`
	FormatAutoCreated     float64 `yaml:"format_auto_created"`
	DualExtractionMethod  float64 `yaml:"dual_extraction_method"`
	HistoricalSmallSample float64 `yaml:"historical_small_sample"`
	IssuerNewCompany      float64 `yaml:"issuer_new_company"`
}

// RoutingThresholds are the two routing decision boundaries, inclusive on
// the upper side.
type RoutingThresholds struct {
	AutoApprove float64 `yaml:"auto_approve_threshold"`
	QuickReview float64 `yaml:"quick_review_threshold"`
}

// DefaultTuning returns the engine defaults used when the tuning file omits
// a value or does not exist.
func DefaultTuning() *Tuning {
	return &Tuning{
		Weights: map[models.Dimension]float64{
			models.DimensionExtractionQuality:    0.20,
			models.DimensionIssuerIdentification: 0.15,
			models.DimensionFormatIdentification: 0.15,
			models.DimensionConfigMatch:          0.10,
			models.DimensionHistoricalAccuracy:   0.15,
			models.DimensionFieldCompleteness:    0.15,
			models.DimensionTermMatching:         0.10,
		},
		Adjustments: Adjustments{
			FormatExactMatch:      10,
			FormatAutoCreated:     -15,
			DualExtractionMethod:  5,
			HistoricalSmallSample: -20,
			IssuerNewCompany:      -15,
		},
		Routing: RoutingThresholds{
			AutoApprove: 90,
			QuickReview: 70,
		},
		FieldReviewThreshold: 70,
		HistoricalMinSample:  20,
		CacheTTLMinutes:      5,
		FetchTimeoutMillis:   2000,
	}
}

// Validate fails fast on configurations that would make routing wrong for
// every document. Weight sum issues are deliberately not an error here; the
// calculator renormalizes them with a logged warning.
func (t *Tuning) Validate() error {
	if t.Routing.QuickReview >= t.Routing.AutoApprove {
		return fmt.Errorf("%w: quick_review=%.1f auto_approve=%.1f",
			apperrors.ErrInvalidThresholds, t.Routing.QuickReview, t.Routing.AutoApprove)
	}
	for dim, w := range t.Weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("weight for dimension %s out of range [0,1]: %f", dim, w)
		}
	}
	return nil
}

// CacheTTL returns the rule-set cache TTL as a duration.
func (t *Tuning) CacheTTL() time.Duration {
	return time.Duration(t.CacheTTLMinutes) * time.Minute
}

// FetchTimeout returns the per-scope configuration fetch bound as a duration.
func (t *Tuning) FetchTimeout() time.Duration {
	return time.Duration(t.FetchTimeoutMillis) * time.Millisecond
}

// LoadTuning reads the tuning file, layering it over DefaultTuning. A missing
// file yields the defaults; an invalid file or invalid thresholds is an error.
func LoadTuning(path string) (*Tuning, error) {
	tuning := DefaultTuning()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return tuning, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, tuning); err != nil {
		return nil, fmt.Errorf("failed to parse tuning file %s: %w", path, err)
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning file %s: %w", path, err)
	}
	return tuning, nil
}

// TuningStore hands out the current tuning snapshot and supports atomic
// hot reloads. Readers always see a complete, validated Tuning.
type TuningStore struct {
	path    string
	current atomic.Pointer[Tuning]
	logger  *zap.Logger
}

// NewTuningStore loads the tuning file and wraps it in a reloadable store.
func NewTuningStore(path string, logger *zap.Logger) (*TuningStore, error) {
	tuning, err := LoadTuning(path)
	if err != nil {
		return nil, err
	}
	store := &TuningStore{path: path, logger: logger}
	store.current.Store(tuning)
	return store, nil
}

// NewStaticTuningStore wraps a fixed tuning, for tests and embedded use.
func NewStaticTuningStore(tuning *Tuning) *TuningStore {
	store := &TuningStore{logger: zap.NewNop()}
	store.current.Store(tuning)
	return store
}

// Current returns the active tuning snapshot.
func (s *TuningStore) Current() *Tuning {
	return s.current.Load()
}

// Reload re-reads the tuning file and swaps it in atomically. On failure the
// previous tuning stays active and the error is returned for the caller to
// surface; a process serving documents keeps its last good configuration.
func (s *TuningStore) Reload() error {
	if s.path == "" {
		return nil
	}
	tuning, err := LoadTuning(s.path)
	if err != nil {
		s.logger.Error("Tuning reload failed, keeping previous tuning", zap.Error(err))
		return err
	}
	s.current.Store(tuning)
	s.logger.Info("Tuning reloaded",
		zap.Float64("auto_approve_threshold", tuning.Routing.AutoApprove),
		zap.Float64("quick_review_threshold", tuning.Routing.QuickReview))
	return nil
}
