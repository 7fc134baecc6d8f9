package scoring

import (
	"context"
	"log/slog"
	"strings"

	"campustrack/internal/logging"
	"campustrack/internal/metrics"
)

// Fallback serves Primary's result when it succeeds and validates, and
// Secondary's otherwise. Score never returns an error when Secondary is
// the heuristic.
type Fallback struct {
	Primary   Scorer
	Secondary Scorer
	Log       *slog.Logger
}

func (f Fallback) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f Fallback) Score(ctx context.Context, in Input) (Result, error) {
	res, err := f.Primary.Score(ctx, in)
	if err == nil {
		err = Validate(res)
	}
	if err == nil {
		return res, nil
	}
	metrics.ScoringFallbacks.Inc()
	logging.OrDefault(f.Log).WarnContext(ctx, "primary scorer failed, using fallback",
		"primary", f.Primary.Name(), "err", err)
	return f.Secondary.Score(ctx, in)
}

// Select builds the scorer named by kind. Unknown kinds and an external
// scorer without a model resolve to the heuristic.
func Select(kind string, ext *External, log *slog.Logger) Scorer {
	if strings.EqualFold(kind, "external") && ext != nil && ext.Model != "" {
		return Fallback{Primary: ext, Secondary: Heuristic{}, Log: log}
	}
	return Heuristic{}
}
