package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wpinsight/internal/retention"
)

// RetentionJobName identifies the daily retention sweep.
const RetentionJobName = "retention_sweep"

// Sweeper purges raw rows. *retention.Sweeper implements it.
type Sweeper interface {
	Run(ctx context.Context) (retention.Result, error)
}

// Checkpointer flushes the SQLite WAL. *database.DBManager implements it.
type Checkpointer interface {
	CheckpointWAL(mode string) error
}

// RetentionJob runs the retention sweep once a day and checkpoints the WAL
// when rows were deleted.
type RetentionJob struct {
	sweeper      Sweeper
	checkpointer Checkpointer
	logger       *slog.Logger
	interval     time.Duration
}

func NewRetentionJob(sweeper Sweeper, checkpointer Checkpointer, logger *slog.Logger) *RetentionJob {
	return &RetentionJob{
		sweeper:      sweeper,
		checkpointer: checkpointer,
		logger:       logger,
		interval:     24 * time.Hour,
	}
}

func (j *RetentionJob) Name() string { return RetentionJobName }

func (j *RetentionJob) Interval() time.Duration { return j.interval }

// Run sweeps once. A sweep already in progress is not an error.
func (j *RetentionJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Run(ctx)
	if errors.Is(err, retention.ErrSweepInProgress) {
		j.logger.Debug("Retention sweep already running, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	if result.Total() > 0 && j.checkpointer != nil {
		if err := j.checkpointer.CheckpointWAL("TRUNCATE"); err != nil {
			j.logger.Warn("Failed to checkpoint WAL after retention sweep", slog.Any("error", err))
		}
	}
	return nil
}
