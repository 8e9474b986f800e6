package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/chatdump/internal/fetch"
)

// ValidationError reports a setting or flag that cannot be used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the settings before any request is made.
func (s Settings) Validate() error {
	if s.MinBatchSize < fetch.MinBatchSize || s.MaxBatchSize > fetch.MaxBatchSize || s.MinBatchSize > s.MaxBatchSize {
		return invalid("batch size bounds", "[%d, %d] must lie within [%d, %d]",
			s.MinBatchSize, s.MaxBatchSize, fetch.MinBatchSize, fetch.MaxBatchSize)
	}
	if err := s.validateBatchSize(s.BatchSize); err != nil {
		return err
	}
	if s.MaxRetries < 0 {
		return invalid("max_retries", "must not be negative, got %d", s.MaxRetries)
	}
	if s.RequestDelay.Duration < 0 || s.RetryDelay.Duration < 0 || s.MaxRetryDelay.Duration < 0 {
		return invalid("delays", "must not be negative")
	}
	if s.Concurrency < 1 {
		return invalid("concurrency", "must be at least 1, got %d", s.Concurrency)
	}
	if s.FlushEvery < 0 {
		return invalid("flush_every", "must not be negative, got %d", s.FlushEvery)
	}
	if !s.Direction.Valid() {
		return invalid("direction", "%q is not forward or backward", s.Direction)
	}
	if _, err := zapcore.ParseLevel(s.level()); err != nil {
		return invalid("log_level", "%v", err)
	}
	return nil
}

func (s Settings) validateBatchSize(n int) error {
	if n < s.MinBatchSize || n > s.MaxBatchSize {
		return invalid("batch_size", "%d is outside [%d, %d]", n, s.MinBatchSize, s.MaxBatchSize)
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (s Settings) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(s.level())
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (s Settings) level() string {
	if strings.TrimSpace(s.LogLevel) == "" {
		return "info"
	}
	return s.LogLevel
}
