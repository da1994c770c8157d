package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/unkn0wn-root/strata"
)

func TestFieldsReachSlog(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{
		Level: stdslog.LevelDebug,
	}))}

	l.Error("dropped undecodable entry", strata.Fields{"key": "user:42:profile"})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["level"] != "ERROR" {
		t.Fatalf("level = %v", line["level"])
	}
	if line["msg"] != "dropped undecodable entry" {
		t.Fatalf("msg = %v", line["msg"])
	}
	if line["key"] != "user:42:profile" {
		t.Fatalf("fields = %v", line)
	}
}
