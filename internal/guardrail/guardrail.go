package guardrail

import (
	"log/slog"

	"github.com/jwebster45206/scene-engine/internal/metrics"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/textfilter"
)

const DefaultMaxInputChars = 600

// Config bounds what the guardrail accepts.
type Config struct {
	MaxInputChars int
	// HPDeltaMin is the global floor for a single turn's HP delta. A
	// scenario may set a stricter (less negative) floor but never a looser one.
	HPDeltaMin int
}

// Guard validates player input on the way in and repairs decision
// output on the way out. It holds no per-session state.
type Guard struct {
	cfg        Config
	classifier Classifier
	filter     *textfilter.ProfanityFilter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Guard. classifier may be nil, in which case free-text
// input is screened locally only.
func New(cfg Config, classifier Classifier, m *metrics.Metrics, logger *slog.Logger) *Guard {
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.HPDeltaMin >= 0 {
		cfg.HPDeltaMin = scenario.DefaultHPDeltaMin
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		cfg:        cfg,
		classifier: classifier,
		filter:     textfilter.NewProfanityFilter(),
		metrics:    m,
		logger:     logger,
	}
}

func (g *Guard) clamped(field string, original, clamped any, attrs ...any) {
	g.metrics.RecordClamp(field)
	args := append([]any{"field", field, "original", original, "clamped", clamped}, attrs...)
	g.logger.Warn("Clamped decision output", args...)
}
