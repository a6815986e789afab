package isdgo

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with training-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogStep logs a periodic training progress line.
func (l *Logger) LogStep(ctx context.Context, epoch, step, totalSteps int, loss, lossAvg float64, batchTime, dataTime time.Duration) {
	l.InfoContext(ctx, "train",
		"epoch", epoch,
		"step", step,
		"steps", totalSteps,
		"loss", loss,
		"loss_avg", lossAvg,
		"batch_time", batchTime,
		"data_time", dataTime,
	)
}

// LogEpoch logs the completion of a training epoch.
func (l *Logger) LogEpoch(ctx context.Context, epoch int, lr float32, lossAvg float64, duration time.Duration) {
	l.InfoContext(ctx, "epoch completed",
		"epoch", epoch,
		"lr", lr,
		"loss_avg", lossAvg,
		"duration", duration,
	)
}

// LogCheckpoint logs a checkpoint save.
func (l *Logger) LogCheckpoint(ctx context.Context, name string, epoch int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"name", name,
			"epoch", epoch,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checkpoint saved",
			"name", name,
			"epoch", epoch,
		)
	}
}

// LogResume logs a checkpoint resume.
func (l *Logger) LogResume(ctx context.Context, path string, epoch int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "resume failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "resumed from checkpoint",
			"path", path,
			"epoch", epoch,
		)
	}
}
