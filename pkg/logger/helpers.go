package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs a completed HTTP exchange at a level matching its status
func LogRequest(log Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status":      statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		log.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		log.WarnWithFields("HTTP request client error", fields)
	default:
		log.DebugWithFields("HTTP request completed", fields)
	}
}

// LogDownload logs the outcome of one photo download
func LogDownload(log Logger, photoID, filename string, size int64, err error) {
	fields := map[string]interface{}{
		"photo_id": photoID,
		"filename": filename,
	}

	if err != nil {
		log.WithFields(fields).WithError(err).Error("download failed")
		return
	}

	fields["size"] = size
	log.DebugWithFields("download completed", fields)
}

// LogRateLimit logs a rate limit response from the remote API
func LogRateLimit(log Logger, endpoint, remaining string) {
	log.WarnWithFields("rate limit exceeded", map[string]interface{}{
		"endpoint":  endpoint,
		"remaining": remaining,
	})
}

// LogBatchProgress logs per-page acquisition progress
func LogBatchProgress(log Logger, page, fetched, downloaded, skipped int) {
	log.InfoWithFields("page processed", map[string]interface{}{
		"page":       page,
		"fetched":    fetched,
		"downloaded": downloaded,
		"skipped":    skipped,
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
