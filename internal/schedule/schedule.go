// Package schedule renders a tenant's weekly availability into the
// natural-language scheduling policy handed to the agent.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Fixed temporal conventions of generated events.
const (
	Timezone        = "America/Sao_Paulo"
	TimezoneOffset  = "-03:00"
	TimestampFormat = "YYYY-MM-DDTHH:mm:ss-03:00"
	DefaultLabel    = "Appointment"
)

// Heading opens every generated scheduling block.
const Heading = "## Scheduling policy"

// Config is a tenant's weekly availability.
type Config struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	Monday            bool   `json:"mon" yaml:"mon"`
	Tuesday           bool   `json:"tue" yaml:"tue"`
	Wednesday         bool   `json:"wed" yaml:"wed"`
	Thursday          bool   `json:"thu" yaml:"thu"`
	Friday            bool   `json:"fri" yaml:"fri"`
	Saturday          bool   `json:"sat" yaml:"sat"`
	Sunday            bool   `json:"sun" yaml:"sun"`
	StartTime         string `json:"startTime" yaml:"startTime"`
	EndTime           string `json:"endTime" yaml:"endTime"`
	SlotMinutes       int    `json:"slotMinutes" yaml:"slotMinutes"`
	AllowPartialHours bool   `json:"allowPartialHours" yaml:"allowPartialHours"`
	EventLabel        string `json:"eventLabel,omitempty" yaml:"eventLabel,omitempty"`
}

// Holiday is a date on which nothing may be scheduled.
type Holiday struct {
	Date        string `json:"date" yaml:"date"`
	Description string `json:"description" yaml:"description"`
}

var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Days returns the enabled flags in week order, Monday first.
func (c Config) Days() [7]bool {
	return [7]bool{c.Monday, c.Tuesday, c.Wednesday, c.Thursday, c.Friday, c.Saturday, c.Sunday}
}

// DaySummary describes the enabled days, preferring "every day", then
// "weekdays", then "the weekend", before falling back to a list.
func DaySummary(days [7]bool) string {
	all, weekdays, weekend := true, true, true
	for i, on := range days {
		all = all && on
		if i < 5 {
			weekdays = weekdays && on
			weekend = weekend && !on
		} else {
			weekdays = weekdays && !on
			weekend = weekend && on
		}
	}
	switch {
	case all:
		return "every day"
	case weekdays:
		return "weekdays"
	case weekend:
		return "the weekend"
	}

	var names []string
	for i, on := range days {
		if on {
			names = append(names, dayNames[i])
		}
	}
	if len(names) == 0 {
		return "no days"
	}
	return strings.Join(names, ", ")
}

// DurationPhrase renders a slot length in words.
func DurationPhrase(minutes int) string {
	switch minutes {
	case 30:
		return "30 minutes"
	case 60:
		return "1 hour"
	case 90:
		return "1 hour and 30 minutes"
	case 120:
		return "2 hours"
	default:
		return fmt.Sprintf("%d minutes", minutes)
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// FormatDate rewrites a date to DD-MM-YYYY. Datetimes keep the calendar day
// of their own offset. Input that matches no known layout is returned as is.
func FormatDate(s string) string {
	in := strings.TrimSpace(s)
	if len(in) >= 10 {
		if t, err := time.Parse("2006-01-02", in[:10]); err == nil && (len(in) == 10 || in[10] == 'T' || in[10] == ' ') {
			return t.Format("02-01-2006")
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, in); err == nil {
			return t.Format("02-01-2006")
		}
	}
	return s
}

// Text renders the scheduling policy block. A disabled config yields "".
func Text(cfg Config, holidays []Holiday) string {
	if !cfg.Enabled {
		return ""
	}

	label := strings.TrimSpace(cfg.EventLabel)

	var b strings.Builder
	b.WriteString(Heading + "\n\n")
	fmt.Fprintf(&b, "You can schedule appointments for the customer on %s, between %s and %s (%s time).\n",
		DaySummary(cfg.Days()), cfg.StartTime, cfg.EndTime, Timezone)
	fmt.Fprintf(&b, "Each appointment lasts %s.\n", DurationPhrase(cfg.SlotMinutes))
	if cfg.AllowPartialHours {
		b.WriteString("Any start time inside the available window is acceptable (for example 09:15 or 10:30).\n")
	} else {
		b.WriteString("Only offer start times on the hour (for example 09:00, 10:00 or 11:00), never in between.\n")
	}

	if len(holidays) > 0 {
		b.WriteString("\nNever schedule on these dates:\n")
		for _, h := range holidays {
			desc := strings.TrimSpace(h.Description)
			if desc == "" {
				fmt.Fprintf(&b, "- %s\n", FormatDate(h.Date))
				continue
			}
			fmt.Fprintf(&b, "- %s (%s)\n", FormatDate(h.Date), desc)
		}
	}

	b.WriteString("\n")
	if label != "" {
		fmt.Fprintf(&b, "Always use %q as the event title. Never ask the customer to choose a title.\n", label)
	} else {
		fmt.Fprintf(&b, "Use %q as the event title.\n", DefaultLabel)
	}

	b.WriteString("\nProcedure:\n")
	b.WriteString("- Before creating, updating or deleting an event, always list the existing events first.\n")
	b.WriteString("- Never schedule an event in the past.\n")
	b.WriteString("- Always ask the customer to confirm before deleting an event.\n")
	fmt.Fprintf(&b, "- Use the %s timezone offset for every date you send.\n", TimezoneOffset)
	fmt.Fprintf(&b, "- When creating or updating an event, send start and end in the format %s.", TimestampFormat)
	return b.String()
}
