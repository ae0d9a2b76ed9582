package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-panel/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

type orchestratorMetrics struct {
	turnsStarted  metric.Int64Counter
	turnsRejected metric.Int64Counter
	speakCycles   metric.Int64Counter
}

func newOrchestratorMetrics() orchestratorMetrics {
	var m orchestratorMetrics
	var err error
	if m.turnsStarted, err = meter.Int64Counter("ema_panel.turns.started",
		metric.WithDescription("Number of turns opened in the speaking slot")); err != nil {
		logger.Warn("failed to create turns started counter", "error", err)
	}
	if m.turnsRejected, err = meter.Int64Counter("ema_panel.turns.rejected",
		metric.WithDescription("Number of turn starts rejected because the slot was taken")); err != nil {
		logger.Warn("failed to create turns rejected counter", "error", err)
	}
	if m.speakCycles, err = meter.Int64Counter("ema_panel.speak_cycles",
		metric.WithDescription("Number of finished speak cycles by result kind")); err != nil {
		logger.Warn("failed to create speak cycles counter", "error", err)
	}
	return m
}
