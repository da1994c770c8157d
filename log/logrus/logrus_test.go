package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/strata"
)

func TestFieldsReachLogrus(t *testing.T) {
	base, hook := logrustest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	l.Debug("tag invalidated", strata.Fields{"tag": "billing", "removed": 3})

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("captured %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != logrus.DebugLevel || e.Message != "tag invalidated" {
		t.Fatalf("entry = %+v", e)
	}
	if e.Data["tag"] != "billing" || e.Data["removed"] != 3 {
		t.Fatalf("fields = %v", e.Data)
	}
}
