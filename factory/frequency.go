/*
Package factory converts frequency definitions into flywheel.Frequency values.

PURPOSE:
  Habits carry a structured recurrence rule plus a human-readable
  description. The evaluator only reads the structured fields; the
  description is for display. This package is the single producer of
  Frequency values, so the two can never drift: every Frequency that leaves
  it has been validated and has its Description regenerated.

JSON / YAML SCHEMA:
  {"type": "weekly", "times": 3, "weekdays": [1, 3]}
  {"type": "custom", "times": 1, "period": 3}

  type:     daily | weekly | monthly | custom (default daily)
  times:    completions per window, >= 1 (default 1)
  weekdays: weekly only, 0 = Sunday ... 6 = Saturday
  period:   custom only, window length in days, >= 1

DESCRIPTIONS:
  daily    "2 times a day"
  weekly   "3 times a week on Mon, Wed"
  monthly  "1 time a month"
  custom   "1 time every 3 days"

USAGE:
  f, err := factory.ParseFrequency(`{"type":"daily","times":2}`)
  h := flywheel.Habit{Name: "Drink water", Frequency: f}

SEE ALSO:
  - flywheel/recurrence.go: How the structured fields are evaluated
*/
package factory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/warp/habit-flywheel/flywheel"
	"gopkg.in/yaml.v3"
)

// FrequencyJSON is the wire form of a frequency.
type FrequencyJSON struct {
	Type     string `json:"type" yaml:"type"`
	Times    int    `json:"times" yaml:"times"`
	Period   int    `json:"period,omitempty" yaml:"period,omitempty"`
	Weekdays []int  `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
}

// ParseFrequency parses a JSON frequency definition.
func ParseFrequency(jsonStr string) (flywheel.Frequency, error) {
	var fj FrequencyJSON
	if err := json.Unmarshal([]byte(jsonStr), &fj); err != nil {
		return flywheel.Frequency{}, flywheel.Invalid("frequency", err.Error())
	}
	return fj.ToFrequency()
}

// ParseFrequencyYAML parses a YAML frequency definition.
func ParseFrequencyYAML(yamlStr string) (flywheel.Frequency, error) {
	var fj FrequencyJSON
	if err := yaml.Unmarshal([]byte(yamlStr), &fj); err != nil {
		return flywheel.Frequency{}, flywheel.Invalid("frequency", err.Error())
	}
	return fj.ToFrequency()
}

// ToFrequency validates the definition and returns a described Frequency.
func (fj FrequencyJSON) ToFrequency() (flywheel.Frequency, error) {
	f := flywheel.Frequency{
		Type:   flywheel.FrequencyType(strings.ToLower(strings.TrimSpace(fj.Type))),
		Times:  fj.Times,
		Period: fj.Period,
	}
	for _, d := range fj.Weekdays {
		f.Weekdays = append(f.Weekdays, time.Weekday(d))
	}
	return Normalize(f)
}

// FromFrequency returns the wire form of f.
func FromFrequency(f flywheel.Frequency) FrequencyJSON {
	fj := FrequencyJSON{Type: string(f.Type), Times: f.Times, Period: f.Period}
	for _, d := range f.Weekdays {
		fj.Weekdays = append(fj.Weekdays, int(d))
	}
	return fj
}

// Normalize applies defaults, validates, drops fields that do not apply to
// the type, sorts weekdays and regenerates the description.
func Normalize(f flywheel.Frequency) (flywheel.Frequency, error) {
	if f.Type == "" {
		f.Type = flywheel.FrequencyDaily
	}
	if f.Times == 0 {
		f.Times = 1
	}
	if f.Times < 0 {
		return flywheel.Frequency{}, flywheel.Invalid("frequency.times", "must be at least 1")
	}

	switch f.Type {
	case flywheel.FrequencyDaily, flywheel.FrequencyMonthly:
		f.Period = 0
		f.Weekdays = nil
	case flywheel.FrequencyWeekly:
		f.Period = 0
		days, err := normalizeWeekdays(f.Weekdays)
		if err != nil {
			return flywheel.Frequency{}, err
		}
		f.Weekdays = days
	case flywheel.FrequencyCustom:
		if f.Period < 1 {
			return flywheel.Frequency{}, flywheel.Invalid("frequency.period", "custom frequency needs a period of at least 1 day")
		}
		f.Weekdays = nil
	default:
		return flywheel.Frequency{}, flywheel.Invalid("frequency.type", fmt.Sprintf("unknown type %q", f.Type))
	}

	f.Description = Describe(f)
	return f, nil
}

func normalizeWeekdays(in []time.Weekday) ([]time.Weekday, error) {
	if len(in) == 0 {
		return nil, nil
	}
	seen := make(map[time.Weekday]bool, len(in))
	out := make([]time.Weekday, 0, len(in))
	for _, d := range in {
		if d < time.Sunday || d > time.Saturday {
			return nil, flywheel.Invalid("frequency.weekdays", fmt.Sprintf("%d is not a weekday (0-6)", d))
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// DESCRIPTIONS
// =============================================================================

// Describe renders the human-readable form of f.
func Describe(f flywheel.Frequency) string {
	times := plural(f.Times, "time")
	switch f.Type {
	case flywheel.FrequencyWeekly:
		s := times + " a week"
		if len(f.Weekdays) > 0 {
			names := make([]string, len(f.Weekdays))
			for i, d := range f.Weekdays {
				names[i] = d.String()[:3]
			}
			s += " on " + strings.Join(names, ", ")
		}
		return s
	case flywheel.FrequencyMonthly:
		return times + " a month"
	case flywheel.FrequencyCustom:
		if f.Period == 1 {
			return times + " every day"
		}
		return fmt.Sprintf("%s every %d days", times, f.Period)
	default:
		return times + " a day"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
