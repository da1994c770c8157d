package zap

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/strata"
)

func TestFieldsReachZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Info("remote store recovered", strata.Fields{"op": "ping"})
	l.Error("encode failed", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("captured %d entries, want 2", len(entries))
	}
	if entries[0].Message != "remote store recovered" || entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("entry = %+v", entries[0])
	}
	fields := entries[0].ContextMap()
	if fields["op"] != "ping" {
		t.Fatalf("fields = %v", fields)
	}
	if len(entries[1].Context) != 0 {
		t.Fatalf("nil Fields should add no context, got %v", entries[1].Context)
	}
}
