// Package prompt composes the agent's system instructions from fixed policy
// segments, the tenant's own text and an optional scheduling policy.
//
// Injected segments are bounded by sentinel comments so a later composition
// can remove them by delimiter before injecting fresh ones. Segments written
// before the sentinels existed are still recognized by their headings.
package prompt

import (
	"regexp"
	"strings"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/schedule"
)

// ExpressionMarker flags a parameter as an expression for the orchestration
// engine. Composed instructions always start with it.
const ExpressionMarker = "="

// Segment names an injected block.
type Segment string

const (
	SegmentContext  Segment = "context"
	SegmentIdentity Segment = "identity"
	SegmentSchedule Segment = "schedule"
)

var segments = []Segment{SegmentContext, SegmentIdentity, SegmentSchedule}

func (s Segment) begin() string { return "<!-- specializer:" + string(s) + ":begin -->" }
func (s Segment) end() string   { return "<!-- specializer:" + string(s) + ":end -->" }

func (s Segment) wrap(body string) string {
	return s.begin() + "\n" + body + "\n" + s.end()
}

// TemporalContext tells the agent the current date. The expression is
// evaluated by the orchestration engine at run time.
const TemporalContext = "Today is {{ $now.setZone('" + schedule.Timezone + "').toFormat('cccc, dd/MM/yyyy HH:mm') }} (" + schedule.Timezone + " time)."

// IdentityHeading opens the customer identification policy.
const IdentityHeading = "## Customer identification"

// IdentityPolicy explains how to recognize returning customers and how to
// learn the name of new ones.
const IdentityPolicy = IdentityHeading + `
The customer lookup step that runs before you returns the stored name of this contact when they have talked to us before.
- If a name is returned, greet the customer by that name and never ask for it again.
- If no name is returned, this is a new customer: ask for their name once, naturally, early in the conversation, and save it with the customer registration tool as soon as they tell you.
- Do not repeat the greeting or the name request in later messages of the same conversation.`

var (
	markedPatterns = func() []*regexp.Regexp {
		out := make([]*regexp.Regexp, 0, len(segments))
		for _, s := range segments {
			out = append(out, regexp.MustCompile(`(?s)`+regexp.QuoteMeta(s.begin())+`.*?`+regexp.QuoteMeta(s.end())+`\n*`))
		}
		return out
	}()

	strayMarker = regexp.MustCompile(`<!-- specializer:[a-z]+:(?:begin|end) -->\n*`)

	legacyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^=?Today is \{\{[^\n]*\n*`),
		regexp.MustCompile(`(?ms)^` + regexp.QuoteMeta(IdentityHeading) + `\n.*?(?:\n\n+|\z)`),
		regexp.MustCompile(`(?ms)^` + regexp.QuoteMeta(schedule.Heading) + `\n.*?send start and end in the format [^\n]*\n*`),
	}
)

// BaseInstructions recovers the tenant's own text from s by removing every
// injected segment, marked or legacy, and the expression marker. The result
// is a fixed point: applying it again changes nothing.
func BaseInstructions(s string) string {
	for {
		next := stripOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

// stripOnce removes marked segments first. Legacy patterns only run on the
// trimmed remainder, so they see the tenant text exactly as a bare base
// would present it and cannot match the blank lines a removed segment left.
func stripOnce(s string) string {
	for _, re := range markedPatterns {
		s = re.ReplaceAllString(s, "")
	}
	s = trimMarker(strayMarker.ReplaceAllString(s, ""))
	for _, re := range legacyPatterns {
		s = re.ReplaceAllString(s, "")
	}
	return trimMarker(s)
}

func trimMarker(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), ExpressionMarker)
	return strings.TrimSpace(s)
}

// Compose builds the final instructions. base may itself be the output of an
// earlier composition; previously injected segments are replaced, not
// duplicated. scheduleText is omitted when empty.
func Compose(base, scheduleText string) string {
	parts := []string{
		SegmentContext.wrap(TemporalContext),
		SegmentIdentity.wrap(IdentityPolicy),
	}
	if b := BaseInstructions(base); b != "" {
		parts = append(parts, b)
	}
	if st := strings.TrimSpace(scheduleText); st != "" {
		parts = append(parts, SegmentSchedule.wrap(st))
	}
	return ExpressionMarker + strings.Join(parts, "\n\n")
}

// Apply composes instructions for the workflow's agent node. It reports
// false and changes nothing when the workflow has no agent.
func Apply(wf *graph.Workflow, base string, cfg schedule.Config, holidays []schedule.Holiday) bool {
	agent, ok := wf.FirstOfKind(graph.KindAgent)
	if !ok {
		return false
	}
	msg := Compose(base, schedule.Text(cfg, holidays))
	params, err := graph.DecodeParams[graph.AgentParams](agent)
	if err == nil {
		params.SetSystemMessage(msg)
		err = agent.MergeParams(params)
	}
	if err != nil {
		// Parameters the typed view cannot hold are rewritten in place.
		agent.SetSystemMessage(msg)
	}
	return true
}
