package clientdata

import (
	"github.com/rs/zerolog"
	"github.com/stockworks/workbench/internal/scheduler/base"
)

// CleanupJob removes expired entries from the response cache. Scheduled to
// run hourly.
type CleanupJob struct {
	base.JobBase
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates a new client data cleanup job.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		JobBase: base.NewJobBase("client_data_cleanup"),
		repo:    repo,
		log:     log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run executes the cleanup job, removing all expired cache entries.
func (j *CleanupJob) Run() error {
	deleted, err := j.repo.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("failed to delete expired client data")
		return err
	}
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("client data cleanup completed")
	}
	return nil
}
