package playback

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OpenFunscripter/playback/internal/playback"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
