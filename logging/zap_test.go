package logging_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/blackcatacademy/blackcat-database/logging"
)

func newObserved(level zapcore.Level) (*logging.Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)

	return logging.NewZap(zap.New(core)), observed
}

func TestLoggerLevelsAndFields(t *testing.T) {
	logger, observed := newObserved(zapcore.DebugLevel)

	logger.Debug("claimed batch", "count", 3)
	logger.Info("cleanup finished", "deleted", int64(10))
	logger.Warn("dispatch failed", "id", int64(7), "error", errors.New("boom"))
	logger.Error("relay stopped", "worker", 1)

	entries := observed.All()
	require.Len(t, entries, 4)

	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, "claimed batch", entries[0].Message)
	require.EqualValues(t, 3, entries[0].ContextMap()["count"])

	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
	require.EqualValues(t, 10, entries[1].ContextMap()["deleted"])

	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.EqualValues(t, 7, entries[2].ContextMap()["id"])

	require.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	require.Equal(t, "relay stopped", entries[3].Message)
}

func TestLoggerRespectsLevel(t *testing.T) {
	logger, observed := newObserved(zapcore.WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	require.Equal(t, 1, observed.Len())
	require.Equal(t, "shown", observed.All()[0].Message)
}

func TestLoggerWithAndNamed(t *testing.T) {
	logger, observed := newObserved(zapcore.InfoLevel)

	logger.Named("relay").With("worker_id", "w-1").Info("started")

	entries := observed.All()
	require.Len(t, entries, 1)
	require.Equal(t, "relay", entries[0].LoggerName)
	require.Equal(t, "w-1", entries[0].ContextMap()["worker_id"])
}

func TestNilZapLoggerDiscards(t *testing.T) {
	logger := logging.NewZap(nil)

	require.NotPanics(t, func() {
		logger.Info("dropped", "key", "value")
	})
}

func TestNew(t *testing.T) {
	prod, err := logging.New(logging.EnvProduction, "warn")
	require.NoError(t, err)
	require.False(t, prod.Core().Enabled(zapcore.InfoLevel))
	require.True(t, prod.Core().Enabled(zapcore.WarnLevel))

	dev, err := logging.New("dev", "")
	require.NoError(t, err)
	require.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	_, err = logging.New("dev", "loud")
	require.Error(t, err)
}
