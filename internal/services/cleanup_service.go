package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"feedbackapp/internal/observability"
)

// AbandonedSessionMaxAge is how long an open session may stay open before the
// cleanup pass force-closes it.
const AbandonedSessionMaxAge = 24 * time.Hour

// CleanupService handles database maintenance and cleanup tasks
type CleanupService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewCleanupServiceWithLogger creates a new cleanup service with logger
func NewCleanupServiceWithLogger(db *sql.DB, logger *observability.Logger) *CleanupService {
	return &CleanupService{
		db:     db,
		logger: logger,
	}
}

// CloseAbandonedSessions force-closes open sessions whose start time is older
// than AbandonedSessionMaxAge. The recorded duration is capped at the max age
// so a forgotten tab does not inflate engagement totals.
func (c *CleanupService) CloseAbandonedSessions(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "close_abandoned_sessions")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return errors.New("database connection not available")
	}

	cutoff := time.Now().Add(-AbandonedSessionMaxAge)

	var count int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM submission_sessions
		WHERE ended_at IS NULL AND started_at < $1
	`, cutoff).Scan(&count)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int("cleanup.abandoned_sessions_count", count))

	if count == 0 {
		c.logger.Info(ctx, "No abandoned sessions found to close", map[string]interface{}{})
		span.SetAttributes(attribute.String("cleanup.result", "no_abandoned_sessions"))
		return nil
	}

	c.logger.Info(ctx, "Found abandoned sessions to close", map[string]interface{}{"count": count})

	now := time.Now()
	result, err := c.db.ExecContext(ctx, `
		UPDATE submission_sessions
		SET ended_at = started_at + ($1 * INTERVAL '1 second'),
		    duration_seconds = $1,
		    updated_at = $2
		WHERE ended_at IS NULL AND started_at < $3
	`, int64(AbandonedSessionMaxAge.Seconds()), now, cutoff)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.rows_affected", rowsAffected),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Successfully closed abandoned sessions", map[string]interface{}{"rows_affected": rowsAffected})
	return nil
}

// PurgeExpiredSessions deletes closed sessions that ended before the
// retention cutoff. Sessions linked to a submission are kept.
func (c *CleanupService) PurgeExpiredSessions(ctx context.Context, retentionDays int) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "purge_expired_sessions")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return errors.New("database connection not available")
	}

	if retentionDays <= 0 {
		c.logger.Info(ctx, "Session retention disabled, skipping purge", map[string]interface{}{})
		span.SetAttributes(attribute.String("cleanup.result", "retention_disabled"))
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	span.SetAttributes(attribute.Int("cleanup.retention_days", retentionDays))

	var count int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM submission_sessions
		WHERE ended_at IS NOT NULL AND ended_at < $1 AND submission_id IS NULL
	`, cutoff).Scan(&count)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int("cleanup.expired_sessions_count", count))

	if count == 0 {
		c.logger.Info(ctx, "No expired sessions found to purge", map[string]interface{}{})
		span.SetAttributes(attribute.String("cleanup.result", "no_expired_sessions"))
		return nil
	}

	c.logger.Info(ctx, "Found expired sessions to purge", map[string]interface{}{"count": count})

	result, err := c.db.ExecContext(ctx, `
		DELETE FROM submission_sessions
		WHERE ended_at IS NOT NULL AND ended_at < $1 AND submission_id IS NULL
	`, cutoff)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.rows_affected", rowsAffected),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Successfully purged expired sessions", map[string]interface{}{"rows_affected": rowsAffected})
	return nil
}

// CleanupOrphanedResponses removes responses for submissions that no longer
// exist. The schema's ON DELETE CASCADE already prevents orphans on normal
// deletes; this sweep guards against rows left behind by manual surgery or
// restores with the constraint dropped.
func (c *CleanupService) CleanupOrphanedResponses(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_orphaned_responses")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return errors.New("database connection not available")
	}

	var count int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM submission_responses sr
		LEFT JOIN submissions s ON sr.submission_id = s.id
		WHERE s.id IS NULL
	`).Scan(&count)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int("cleanup.orphaned_responses_count", count))

	if count == 0 {
		c.logger.Info(ctx, "No orphaned responses found to cleanup", map[string]interface{}{})
		span.SetAttributes(attribute.String("cleanup.result", "no_orphaned_responses"))
		return nil
	}

	c.logger.Info(ctx, "Found orphaned responses to cleanup", map[string]interface{}{"count": count})

	result, err := c.db.ExecContext(ctx, `
		DELETE FROM submission_responses
		WHERE submission_id NOT IN (SELECT id FROM submissions)
	`)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.rows_affected", rowsAffected),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Successfully cleaned up orphaned responses", map[string]interface{}{"rows_affected": rowsAffected})
	return nil
}

// RunFullCleanup performs all cleanup operations
func (c *CleanupService) RunFullCleanup(ctx context.Context, retentionDays int) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "run_full_cleanup")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	span.SetAttributes(attribute.String("cleanup.start_time", time.Now().Format(time.RFC3339)))

	c.logger.Info(ctx, "Starting database cleanup", map[string]interface{}{"start_time": time.Now().Format(time.RFC3339)})

	if err = c.CloseAbandonedSessions(ctx); err != nil {
		c.logger.Error(ctx, "Failed to close abandoned sessions", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	if err = c.PurgeExpiredSessions(ctx, retentionDays); err != nil {
		c.logger.Error(ctx, "Failed to purge expired sessions", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	if err := c.CleanupOrphanedResponses(ctx); err != nil {
		c.logger.Error(ctx, "Failed to cleanup orphaned responses", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.String("cleanup.end_time", time.Now().Format(time.RFC3339)),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Database cleanup completed successfully", map[string]interface{}{"end_time": time.Now().Format(time.RFC3339)})
	return nil
}

// GetCleanupStats returns statistics about cleanup operations
func (c *CleanupService) GetCleanupStats(ctx context.Context) (result0 map[string]int, err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "get_cleanup_stats")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return nil, errors.New("database connection not available")
	}

	stats := make(map[string]int)

	var abandonedCount int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM submission_sessions
		WHERE ended_at IS NULL AND started_at < $1
	`, time.Now().Add(-AbandonedSessionMaxAge)).Scan(&abandonedCount)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["abandoned_sessions"] = abandonedCount

	var orphanedCount int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM submission_responses sr
		LEFT JOIN submissions s ON sr.submission_id = s.id
		WHERE s.id IS NULL
	`).Scan(&orphanedCount)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["orphaned_responses"] = orphanedCount

	span.SetAttributes(
		attribute.Int("cleanup.stats.abandoned_sessions", abandonedCount),
		attribute.Int("cleanup.stats.orphaned_responses", orphanedCount),
	)

	return stats, nil
}
