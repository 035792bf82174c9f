package proctor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderReport(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		set     []Violation
		unknown []UnknownUser
		want    string
	}{
		{
			name: "No violations",
			want: "Report generated at 2024-05-01 10:00:00\n",
		},
		{
			name: "Canonical order regardless of set order",
			set:  []Violation{NoUserDetected, PhoneDetected},
			want: "Report generated at 2024-05-01 10:00:00\n\n- Phone Detected\n- No User Detected",
		},
		{
			name: "Unknown users oldest first",
			set:  []Violation{MultipleOrUnknownUser},
			unknown: []UnknownUser{
				{Timestamp: time.Date(2024, 5, 1, 9, 59, 58, 0, time.UTC)},
				{Timestamp: time.Date(2024, 5, 1, 9, 59, 59, 0, time.UTC)},
			},
			want: "Report generated at 2024-05-01 10:00:00\n" +
				"\n- Multiple or Unknown User" +
				"\n\nUnknown Users:" +
				"\n- Timestamp: 2024-05-01 09:59:58" +
				"\n- Timestamp: 2024-05-01 09:59:59",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Flags
			for _, v := range tt.set {
				f.Set(v)
			}
			got := RenderReport(f, tt.unknown, now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, RenderReport(f, tt.unknown, now), "rendering is deterministic")
		})
	}
}

func TestViolationNames(t *testing.T) {
	assert.Equal(t, "Multiple or Unknown User", MultipleOrUnknownUser.String())
	assert.Equal(t, "Phone Detected", PhoneDetected.String())
	assert.Equal(t, "Window Switched", WindowSwitched.String())
	assert.Equal(t, "No User Detected", NoUserDetected.String())
	assert.Equal(t, "Unknown Violation", Violation(42).String())
}

func TestFlags(t *testing.T) {
	var f Flags
	assert.Empty(t, f.Active())

	f.Set(WindowSwitched)
	f.Set(WindowSwitched)
	f.Set(MultipleOrUnknownUser)
	assert.True(t, f.Has(WindowSwitched))
	assert.False(t, f.Has(PhoneDetected))
	assert.Equal(t, []Violation{MultipleOrUnknownUser, WindowSwitched}, f.Active())
}
