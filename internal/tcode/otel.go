package tcode

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OpenFunscripter/playback/internal/tcode"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
