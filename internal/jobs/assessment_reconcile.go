// File: internal/jobs/assessment_reconcile.go
package jobs

import (
	"context"
	"time"

	"calma_backend/internal/assessment"
	"calma_backend/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	reconcileRunTimeout = 2 * time.Minute
	schedulerStopWait   = 10 * time.Second
)

// AssessmentReconcileJob periodically retries assessments that could not be
// recorded during signup.
type AssessmentReconcileJob struct {
	assessmentService assessment.Service
	logger            *zap.Logger
	cfg               *config.Config
	cronScheduler     *cron.Cron
}

// NewAssessmentReconcileJob creates a new AssessmentReconcileJob.
func NewAssessmentReconcileJob(
	assessmentService assessment.Service,
	logger *zap.Logger,
	cfg *config.Config,
) *AssessmentReconcileJob {
	cronLog := NewCronLogger(logger.Named("cron"))
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.SkipIfStillRunning(cronLog)),
	)

	return &AssessmentReconcileJob{
		assessmentService: assessmentService,
		logger:            logger.Named("AssessmentReconcileJob"),
		cfg:               cfg,
		cronScheduler:     scheduler,
	}
}

// SetupAndStart schedules and starts the cron job. An empty schedule
// disables the job.
func (j *AssessmentReconcileJob) SetupAndStart() error {
	jobSpec := j.cfg.AssessmentReconcileSchedule
	if jobSpec == "" {
		j.logger.Warn("Assessment reconcile schedule not defined (ASSESSMENT_RECONCILE_SCHEDULE). Job will not run.")
		return nil
	}

	jobID, err := j.cronScheduler.AddFunc(jobSpec, j.runJob)
	if err != nil {
		j.logger.Error("Failed to schedule assessment reconcile job", zap.String("spec", jobSpec), zap.Error(err))
		return err
	}

	j.logger.Info("Assessment reconcile job scheduled", zap.String("spec", jobSpec), zap.Any("jobID", jobID))
	j.cronScheduler.Start()
	return nil
}

func (j *AssessmentReconcileJob) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileRunTimeout)
	defer cancel()
	_, _ = j.RunOnce(ctx)
}

// RunOnce performs a single reconcile pass. The error is already logged.
func (j *AssessmentReconcileJob) RunOnce(ctx context.Context) (assessment.ReconcileResult, error) {
	j.logger.Debug("Starting assessment reconcile run")

	result, err := j.assessmentService.ReconcilePending(ctx)
	if err != nil {
		j.logger.Error("Assessment reconcile run failed", zap.Error(err))
		return result, err
	}
	if result == (assessment.ReconcileResult{}) {
		j.logger.Debug("Assessment reconcile run found nothing to do")
		return result, nil
	}
	j.logger.Info("Assessment reconcile run completed",
		zap.Int("recorded", result.Recorded),
		zap.Int("unresolved", result.Unresolved),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// Stop gracefully stops the cron scheduler.
func (j *AssessmentReconcileJob) Stop() {
	if j.cronScheduler == nil {
		return
	}
	j.logger.Info("Stopping assessment reconcile scheduler...")
	stopCtx := j.cronScheduler.Stop()
	select {
	case <-stopCtx.Done():
		j.logger.Info("Assessment reconcile scheduler stopped gracefully.")
	case <-time.After(schedulerStopWait):
		j.logger.Warn("Assessment reconcile scheduler stop timed out.")
	}
}
