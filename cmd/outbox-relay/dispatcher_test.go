package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/blackcatacademy/blackcat-database/internal/config"
	"github.com/blackcatacademy/blackcat-database/logging"
	"github.com/blackcatacademy/blackcat-database/outbox"
)

func TestLogDispatcher(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	cfg := &config.Config{Dispatcher: config.DispatcherConfig{Kind: config.DispatcherLog}}

	d, closeFn, err := newDispatcher(context.Background(), cfg, logging.NewZap(zap.New(core)))
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	err = d.Dispatch(context.Background(), outbox.Event{ID: 9, EventType: "user.created", Payload: json.RawMessage(`{"id":1}`), Attempt: 1})
	require.NoError(t, err)

	entries := observed.All()
	require.Len(t, entries, 1)
	require.Equal(t, "outbox event", entries[0].Message)
	require.EqualValues(t, 9, entries[0].ContextMap()["id"])
	require.Equal(t, `{"id":1}`, entries[0].ContextMap()["payload"])
}

func TestRedisDispatcher(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Dispatcher: config.DispatcherConfig{Kind: config.DispatcherRedis},
		Redis:      config.RedisConfig{Addr: mr.Addr(), StreamPrefix: "outbox:"},
	}

	d, closeFn, err := newDispatcher(context.Background(), cfg, outbox.NopLogger{})
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	err = d.Dispatch(context.Background(), outbox.Event{ID: 1, EventType: "user.created", Payload: json.RawMessage(`{}`), Attempt: 1})
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	n, err := client.XLen(context.Background(), "outbox:user.created").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestUnknownDispatcher(t *testing.T) {
	cfg := &config.Config{Dispatcher: config.DispatcherConfig{Kind: "smtp"}}
	_, _, err := newDispatcher(context.Background(), cfg, outbox.NopLogger{})
	require.Error(t, err)
}
