package cli

import (
	"context"
	"log/slog"
	"testing"
)

func TestSetupLoggerLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		level     string
		debugOn   bool
		infoOn    bool
		warningOn bool
	}{
		{"debug", true, true, true},
		{"", false, true, true},
		{"warn", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := SetupLogger(tt.level)
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.debugOn {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugOn)
			}
			if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.infoOn {
				t.Errorf("info enabled = %v, want %v", got, tt.infoOn)
			}
			if got := slog.Default().Enabled(ctx, slog.LevelWarn); got != tt.warningOn {
				t.Errorf("default warn enabled = %v, want %v", got, tt.warningOn)
			}
		})
	}
}
