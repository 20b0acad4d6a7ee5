package schedule

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDaySummary(t *testing.T) {
	tests := []struct {
		name string
		days [7]bool
		want string
	}{
		{"every day", [7]bool{true, true, true, true, true, true, true}, "every day"},
		{"weekdays", [7]bool{true, true, true, true, true, false, false}, "weekdays"},
		{"weekend", [7]bool{false, false, false, false, false, true, true}, "the weekend"},
		{"list", [7]bool{true, false, true, false, true, false, false}, "Monday, Wednesday, Friday"},
		{"weekdays plus saturday", [7]bool{true, true, true, true, true, true, false}, "Monday, Tuesday, Wednesday, Thursday, Friday, Saturday"},
		{"sunday only", [7]bool{false, false, false, false, false, false, true}, "Sunday"},
		{"none", [7]bool{}, "no days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaySummary(tt.days))
		})
	}
}

func TestDurationPhrase(t *testing.T) {
	tests := map[int]string{
		30:  "30 minutes",
		60:  "1 hour",
		90:  "1 hour and 30 minutes",
		120: "2 hours",
		45:  "45 minutes",
		0:   "0 minutes",
	}
	for in, want := range tests {
		assert.Equal(t, want, DurationPhrase(in), "minutes=%d", in)
	}
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-10-28", "28-10-2025"},
		{"2025-10-28T14:00:00-03:00", "28-10-2025"},
		{"2025-10-28T23:30:00-03:00", "28-10-2025"},
		{"2025-10-28T00:00:00.000Z", "28-10-2025"},
		{"2025-10-28 09:00:00", "28-10-2025"},
		{"Tue, 28 Oct 2025 10:00:00 GMT", "28-10-2025"},
		{"October 28, 2025", "28-10-2025"},
		{"2025/10/28", "28-10-2025"},
		{"not-a-date", "not-a-date"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDate(tt.in))
		})
	}
}

func baseConfig() Config {
	return Config{
		Enabled:     true,
		Monday:      true,
		Tuesday:     true,
		Wednesday:   true,
		Thursday:    true,
		Friday:      true,
		StartTime:   "09:00",
		EndTime:     "18:00",
		SlotMinutes: 60,
	}
}

func TestTextDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	assert.Empty(t, Text(cfg, []Holiday{{Date: "2025-12-25", Description: "Christmas"}}))
}

func TestText(t *testing.T) {
	out := Text(baseConfig(), nil)

	assert.True(t, strings.HasPrefix(out, Heading))
	assert.Contains(t, out, "on weekdays, between 09:00 and 18:00")
	assert.Contains(t, out, "Each appointment lasts 1 hour.")
	assert.Contains(t, out, "Only offer start times on the hour")
	assert.Contains(t, out, `Use "Appointment" as the event title.`)
	assert.NotContains(t, out, "Never schedule on these dates")
	assert.Contains(t, out, "always list the existing events first")
	assert.Contains(t, out, "Never schedule an event in the past")
	assert.Contains(t, out, "confirm before deleting")
	assert.Contains(t, out, TimezoneOffset)
	assert.Contains(t, out, TimestampFormat)
}

func TestTextOptions(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowPartialHours = true
	cfg.SlotMinutes = 90
	cfg.EventLabel = "Haircut"
	holidays := []Holiday{
		{Date: "2025-12-25", Description: "Christmas"},
		{Date: "2026-01-01T00:00:00-03:00"},
		{Date: "someday", Description: "Founders day"},
	}

	out := Text(cfg, holidays)

	assert.Contains(t, out, "Any start time inside the available window is acceptable")
	assert.Contains(t, out, "1 hour and 30 minutes")
	assert.Contains(t, out, `Always use "Haircut" as the event title. Never ask the customer to choose a title.`)
	assert.Contains(t, out, "Never schedule on these dates:\n- 25-12-2025 (Christmas)\n- 01-01-2026\n- someday (Founders day)\n")
}

func TestTextDeterministic(t *testing.T) {
	cfg := baseConfig()
	holidays := []Holiday{{Date: "2025-10-28", Description: "x"}}
	assert.Equal(t, Text(cfg, holidays), Text(cfg, holidays))
}

func TestTextInvertedWindowDoesNotPanic(t *testing.T) {
	cfg := baseConfig()
	cfg.StartTime, cfg.EndTime = "18:00", "09:00"
	cfg.SlotMinutes = -5
	assert.NotPanics(t, func() { _ = Text(cfg, nil) })
}
