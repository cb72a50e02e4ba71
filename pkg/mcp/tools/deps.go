package tools

import (
	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/services"
)

// Deps are the services the tools delegate to. Ingestion may be nil when the
// server runs without a mailbox.
type Deps struct {
	Reviews   services.ReviewService
	Telemetry services.TelemetryService
	Ingestion services.IngestionService
	Logger    *zap.Logger
}
