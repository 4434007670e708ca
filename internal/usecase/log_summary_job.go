package usecase

import (
	"context"

	applogger "CopyRelay/pkg/logger"
	"CopyRelay/pkg/queue"
)

// MsgLogSummary is the queue message type carrying aggregated error logs.
const MsgLogSummary = "log.error_summary"

// LogSummaryJob receives batches collected by the logger's error
// aggregator and emits one summary line per distinct error. Summaries go
// out at info level, which the collector does not capture, so a summary
// can never feed back into another batch.
type LogSummaryJob struct {
	logger *applogger.Logger
}

func NewLogSummaryJob(logger *applogger.Logger) *LogSummaryJob {
	return &LogSummaryJob{logger: logger}
}

func (j *LogSummaryJob) Name() string { return "log_summary" }

func (j *LogSummaryJob) Type() string { return MsgLogSummary }

func (j *LogSummaryJob) Handle(_ context.Context, payload interface{}) error {
	entries, err := queue.ParsePayload[[]applogger.AggregatedLogEntry](payload)
	if err != nil {
		return err
	}
	for _, e := range *entries {
		j.logger.Info("error summary",
			applogger.String("message", e.Message),
			applogger.Int("count", e.Count),
			applogger.String("caller", e.Caller),
			applogger.Any("fields", e.Fields),
		)
	}
	return nil
}
