package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
		wantInfo  bool
	}{
		{name: "production", verbose: false, wantDebug: false, wantInfo: false},
		{name: "verbose", verbose: true, wantDebug: true, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.verbose)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer logger.Sync()

			if got := logger.Core().Enabled(zap.DebugLevel); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := logger.Core().Enabled(zap.InfoLevel); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if !logger.Core().Enabled(zap.WarnLevel) {
				t.Error("warnings must always be enabled")
			}
		})
	}
}

func TestMust(t *testing.T) {
	if Must(false) == nil {
		t.Error("Must() returned nil")
	}
}
