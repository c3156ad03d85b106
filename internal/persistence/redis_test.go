package persistence

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/repairdesk/repairdesk/internal/config"
)

func TestRedisPingWithoutClient(t *testing.T) {
	var r *Redis
	if err := r.Ping(context.Background()); err == nil {
		t.Fatal("expected error for a nil client")
	}
	r.Close()
}

func TestNewRedisUnreachableIsNotFatal(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewRedis(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1", ClientName: "repairdesk-test"}, zap.New(core))
	defer r.Close()

	if r.Client == nil {
		t.Fatal("client should be built even when the server is down")
	}
	if logs.FilterMessageSnippet("redis unreachable").Len() != 1 {
		t.Errorf("warn logs = %v", logs.All())
	}
}
