package styles

import (
	"testing"

	"github.com/Iron-Ham/fanout/internal/progress"
)

func TestStatusColor(t *testing.T) {
	tests := []struct {
		status progress.Status
		want   string
	}{
		{progress.StatusWorking, string(BlueColor)},
		{progress.StatusComplete, string(SecondaryColor)},
		{progress.StatusBlocked, string(WarningColor)},
		{progress.StatusFailed, string(ErrorColor)},
		{progress.StatusIdle, string(MutedColor)},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := string(StatusColor(tt.status)); got != tt.want {
				t.Errorf("StatusColor(%s) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestSeverityStyle(t *testing.T) {
	if SeverityStyle("critical").GetForeground() != ErrorColor {
		t.Error("critical should render in the error color")
	}
	if SeverityStyle("medium").GetForeground() != WarningColor {
		t.Error("medium should render in the warning color")
	}
	if SeverityStyle("low").GetForeground() != MutedColor {
		t.Error("low should render muted")
	}
}
