package usecase

import (
	"context"

	"CopyRelay/internal/domain/models"
	"CopyRelay/internal/repository"
	applogger "CopyRelay/pkg/logger"
	"CopyRelay/pkg/metrics"
	"CopyRelay/pkg/queue"
)

// MsgSignalAccepted is the queue message type carrying an accepted signal.
const MsgSignalAccepted = "signal.accepted"

// ArchiveSignalJob drains accepted signals off the queue and writes them to
// the configured archive backend. Retries are the queue's concern; this job
// just reports failures.
type ArchiveSignalJob struct {
	archive repository.SignalArchive
	backend string
	logger  *applogger.Logger
	rec     *metrics.Recorder
}

func NewArchiveSignalJob(archive repository.SignalArchive, backend string, logger *applogger.Logger, rec *metrics.Recorder) *ArchiveSignalJob {
	return &ArchiveSignalJob{archive: archive, backend: backend, logger: logger, rec: rec}
}

func (j *ArchiveSignalJob) Name() string { return "archive_signal" }

func (j *ArchiveSignalJob) Type() string { return MsgSignalAccepted }

func (j *ArchiveSignalJob) Handle(ctx context.Context, payload interface{}) error {
	sig, err := queue.ParsePayload[models.Signal](payload)
	if err != nil {
		j.logger.Error("archive job payload invalid", applogger.Error(err))
		return err
	}
	if err := j.archive.Archive(ctx, *sig); err != nil {
		if j.rec != nil {
			j.rec.RecordArchiveError(j.backend)
		}
		j.logger.Error("archive write failed",
			applogger.String("backend", j.backend),
			applogger.String("signal_id", sig.ID),
			applogger.Error(err),
		)
		return err
	}
	return nil
}
