package observability

import (
	"github.com/adsboard/adsboard/internal/observability/logger"
	"github.com/adsboard/adsboard/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		logger.New,
	),
	fx.Invoke(ensureTokenMetrics),
)

func ensureTokenMetrics() {
	metrics.Token()
}
