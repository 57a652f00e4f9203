package flow

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("imageflow.flow")
	meter  = otel.Meter("imageflow.flow")
)

// instruments are created lazily on first use so that a MeterProvider
// installed at startup is picked up.
type instruments struct {
	jobs        metric.Int64Counter
	passes      metric.Int64Counter
	rewrites    metric.Int64Counter
	nodeExecute metric.Float64Histogram
	jobDuration metric.Float64Histogram
}

var (
	instrumentsOnce sync.Once
	inst            instruments
)

// loadInstruments logs creation failures and carries on with whichever
// instruments could be created; a nil instrument is skipped when recording.
func loadInstruments(logger *slog.Logger) *instruments {
	instrumentsOnce.Do(func() {
		var failed []string
		var err error

		inst.jobs, err = meter.Int64Counter("imageflow_jobs_total",
			metric.WithDescription("Jobs executed, by outcome"))
		if err != nil {
			failed = append(failed, "jobs: "+err.Error())
		}
		inst.passes, err = meter.Int64Counter("imageflow_passes_total",
			metric.WithDescription("Convergence passes run"))
		if err != nil {
			failed = append(failed, "passes: "+err.Error())
		}
		inst.rewrites, err = meter.Int64Counter("imageflow_rewrites_total",
			metric.WithDescription("Graph rewrites applied by flatten passes"))
		if err != nil {
			failed = append(failed, "rewrites: "+err.Error())
		}
		inst.nodeExecute, err = meter.Float64Histogram("imageflow_node_execute_seconds",
			metric.WithDescription("Time spent executing one node"),
			metric.WithUnit("s"))
		if err != nil {
			failed = append(failed, "node_execute: "+err.Error())
		}
		inst.jobDuration, err = meter.Float64Histogram("imageflow_job_duration_seconds",
			metric.WithDescription("Total job execution time"),
			metric.WithUnit("s"))
		if err != nil {
			failed = append(failed, "job_duration: "+err.Error())
		}

		if len(failed) > 0 {
			logger.Error("failed to initialize some flow metrics",
				slog.Int("failed_count", len(failed)),
				slog.Any("errors", failed))
		}
	})
	return &inst
}
