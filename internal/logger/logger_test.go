package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	defer Set(nil)

	tests := []struct {
		level   string
		format  string
		wantErr bool
	}{
		{"info", "json", false},
		{"debug", "console", false},
		{"warn", "", false},
		{"loud", "json", true},
		{"info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			err := Init(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			}
		})
	}
}

func TestFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	defer Set(nil)

	Warning("unrecognized intent", Options{Key: "function", Data: "doSomething"})
	Error("dispatch failed", Options{Key: "error", Data: errors.New("boom")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].ContextMap()["function"] != "doSomething" {
		t.Errorf("unexpected warning entry: %+v", entries[0])
	}
	if entries[1].ContextMap()["error"] != "boom" {
		t.Errorf("error field = %v", entries[1].ContextMap()["error"])
	}
}

func TestSetNilFallsBackToNop(t *testing.T) {
	Set(nil)
	if L() == nil {
		t.Fatal("L() returned nil")
	}
	Info("discarded")
}
