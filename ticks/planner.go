// Package ticks decides which time-axis labels a chart can show at a given
// plot width, and in which orientation and font size, without overlap.
package ticks

import (
	"math"
	"sort"
	"time"
	"unicode/utf8"
)

// Mode is the number of text lines a label uses.
type Mode int

const (
	SingleLine Mode = iota
	TwoLine
)

func (m Mode) String() string {
	if m == TwoLine {
		return "two-line"
	}
	return "single-line"
}

// MeasureFunc returns the rendered size of one line of text at fontSizePx.
type MeasureFunc func(text string, fontSizePx float64) (width, height float64)

// Candidate is one label layout the planner may try.
type Candidate struct {
	Mode        Mode
	FontSizePx  float64
	RotationDeg float64
}

// Plan is the label layout for one axis.
type Plan struct {
	Mode        Mode    `json:"mode"`
	FontSizePx  float64 `json:"fontSizePx"`
	RotationDeg float64 `json:"rotationDeg"`
	// All means every input timestamp gets a label; Selected is then nil.
	All                 bool        `json:"all"`
	Selected            []time.Time `json:"selected,omitempty"`
	HorizontalPaddingPx float64     `json:"horizontalPaddingPx"`
	LabelBandHeightPx   float64     `json:"labelBandHeightPx"`
	MaxTicks            int         `json:"maxTicks"`

	dateLayout  string
	clockLayout string
}

// Ticks resolves the plan against the timestamps it was computed for.
func (p Plan) Ticks(timestamps []time.Time) []time.Time {
	if p.All {
		return normalize(timestamps)
	}
	return p.Selected
}

// Label returns the text lines drawn for t.
func (p Plan) Label(t time.Time) []string {
	return labelLines(t, p.Mode, p.dateLayout, p.clockLayout)
}

// Planner evaluates Candidates from least to most aggressive.
type Planner struct {
	Candidates []Candidate
	// GapFactor is the inter-label gap as a fraction of the font size.
	GapFactor   float64
	DateLayout  string
	ClockLayout string
}

// Default is the planner used by chart blocks.
var Default = Planner{
	Candidates: []Candidate{
		{Mode: TwoLine, FontSizePx: 12},
		{Mode: TwoLine, FontSizePx: 10},
		{Mode: TwoLine, FontSizePx: 10, RotationDeg: -35},
	},
	GapFactor:   0.5,
	DateLayout:  "01-02",
	ClockLayout: "15:04",
}

// For plans with the Default planner.
func For(timestamps []time.Time, plotWidthPx float64, measure MeasureFunc) Plan {
	return Default.Plan(timestamps, plotWidthPx, measure)
}

// Plan never fails. The first candidate that fits every label wins; if none
// does, the most aggressive candidate thins the labels with a fixed stride
// and always keeps the final timestamp.
func (pl Planner) Plan(timestamps []time.Time, plotWidthPx float64, measure MeasureFunc) Plan {
	candidates := pl.Candidates
	if len(candidates) == 0 {
		candidates = Default.Candidates
	}
	if measure == nil {
		measure = estimate
	}
	dateLayout, clockLayout := pl.DateLayout, pl.ClockLayout
	if dateLayout == "" {
		dateLayout = Default.DateLayout
	}
	if clockLayout == "" {
		clockLayout = Default.ClockLayout
	}
	gap := pl.GapFactor
	if gap < 0 {
		gap = 0
	}

	ts := normalize(timestamps)
	count := len(ts)
	dateOnly := allMidnight(ts)

	var plan Plan
	for _, c := range candidates {
		mode := c.Mode
		if dateOnly {
			mode = SingleLine
		}
		footprint, band := maxFootprint(ts, mode, c, measure, dateLayout, clockLayout)
		perTick := footprint + gap*c.FontSizePx
		plan = Plan{
			Mode:                mode,
			FontSizePx:          c.FontSizePx,
			RotationDeg:         c.RotationDeg,
			HorizontalPaddingPx: footprint / 2,
			LabelBandHeightPx:   band,
			MaxTicks:            maxTicks(plotWidthPx, perTick),
			dateLayout:          dateLayout,
			clockLayout:         clockLayout,
		}
		if count <= 2 || count <= plan.MaxTicks {
			plan.All = true
			return plan
		}
	}

	plan.Selected = thin(ts, plan.MaxTicks)
	return plan
}

func maxTicks(plotWidthPx, perTick float64) int {
	if plotWidthPx <= 0 || perTick <= 0 {
		return 2
	}
	n := int(math.Floor(plotWidthPx / perTick))
	if n < 2 {
		return 2
	}
	return n
}

// thin picks indices 0, stride, 2*stride, ... and the last index.
func thin(ts []time.Time, limit int) []time.Time {
	count := len(ts)
	stride := int(math.Ceil(float64(count-1) / float64(limit-1)))
	if stride < 1 {
		stride = 1
	}
	out := make([]time.Time, 0, limit)
	for i := 0; i < count; i += stride {
		out = append(out, ts[i])
	}
	last := ts[count-1]
	if !out[len(out)-1].Equal(last) {
		if len(out) >= limit {
			out[len(out)-1] = last
		} else {
			out = append(out, last)
		}
	}
	return out
}

// maxFootprint returns the widest horizontal footprint and the tallest band
// height over all labels, projected through the candidate's rotation.
func maxFootprint(ts []time.Time, mode Mode, c Candidate, measure MeasureFunc, dateLayout, clockLayout string) (float64, float64) {
	theta := c.RotationDeg * math.Pi / 180
	cos, sin := math.Abs(math.Cos(theta)), math.Abs(math.Sin(theta))
	var footprint, band float64
	seen := map[string]bool{}
	for _, t := range ts {
		lines := labelLines(t, mode, dateLayout, clockLayout)
		key := lines[0]
		if len(lines) > 1 {
			key += "\n" + lines[1]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		var w, h float64
		for _, line := range lines {
			lw, lh := measure(line, c.FontSizePx)
			w = math.Max(w, lw)
			h += lh
		}
		footprint = math.Max(footprint, w*cos+h*sin)
		band = math.Max(band, w*sin+h*cos)
	}
	return footprint, band
}

func labelLines(t time.Time, mode Mode, dateLayout, clockLayout string) []string {
	if mode == TwoLine {
		return []string{t.Format(dateLayout), t.Format(clockLayout)}
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return []string{t.Format(dateLayout)}
	}
	return []string{t.Format(dateLayout + " " + clockLayout)}
}

// normalize returns a sorted copy without duplicate instants.
func normalize(timestamps []time.Time) []time.Time {
	out := make([]time.Time, len(timestamps))
	copy(out, timestamps)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	n := 0
	for i, t := range out {
		if i > 0 && t.Equal(out[n-1]) {
			continue
		}
		out[n] = t
		n++
	}
	return out[:n]
}

func allMidnight(ts []time.Time) bool {
	if len(ts) == 0 {
		return false
	}
	for _, t := range ts {
		if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 {
			return false
		}
	}
	return true
}

// estimate approximates text size when no font metrics are available.
func estimate(text string, fontSizePx float64) (float64, float64) {
	return float64(utf8.RuneCountInString(text)) * fontSizePx * 0.6, fontSizePx * 1.2
}
