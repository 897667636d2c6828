package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ComponentField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var l Logger = NewZapLogger(zap.New(core))

	l.Infof("%sclose of %s deferred", NSDB, "/tmp/x")
	l.Warnf("no component here")
	l.Fatalf("%sappend failed", NSJournal)

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Message != "close of /tmp/x deferred" {
		t.Errorf("message = %q", entries[0].Message)
	}
	if got := entries[0].ContextMap()["component"]; got != "db" {
		t.Errorf("component = %v, want db", got)
	}
	if _, ok := entries[1].ContextMap()["component"]; ok {
		t.Error("unexpected component field")
	}
	if entries[2].Level != zapcore.ErrorLevel || entries[2].ContextMap()["fatal"] != true {
		t.Errorf("fatal entry = %+v", entries[2])
	}
}

func TestSplitComponent(t *testing.T) {
	tests := []struct{ in, msg, comp string }{
		{"[db] opened", "opened", "db"},
		{"[merge] ", "", "merge"},
		{"plain", "plain", ""},
		{"[unterminated", "[unterminated", ""},
	}
	for _, tt := range tests {
		msg, comp := splitComponent(tt.in)
		if msg != tt.msg || comp != tt.comp {
			t.Errorf("splitComponent(%q) = (%q, %q), want (%q, %q)", tt.in, msg, comp, tt.msg, tt.comp)
		}
	}
}
