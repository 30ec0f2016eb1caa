// Package compress implements the Log Compressor (C3): reducing a log blob
// to a target token budget while never dropping a failure-signal line.
// Grounded on the source engine's log-handling constants in improvements.go
// (MaxLogSize, processLogsInChunks) generalized from a byte cap into a
// region-priority budget, and on logsignal's shared failure detection.
package compress

import (
	"fmt"
	"strings"

	"github.com/wardenci/warden/internal/logsignal"
	"github.com/wardenci/warden/internal/tokencount"
)

// DefaultContextLines is how many neighboring lines on each side of a
// failure-signal line join its error region.
const DefaultContextLines = 5

// Result is the outcome of a Compress call.
type Result struct {
	Text      string
	Truncated bool
}

// Compressor reduces log text to a token budget.
type Compressor struct {
	counter      *tokencount.Counter
	contextLines int
}

// New builds a Compressor using counter for sizing and N context lines
// around each failure signal (0 selects DefaultContextLines).
func New(counter *tokencount.Counter, contextLines int) *Compressor {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}
	return &Compressor{counter: counter, contextLines: contextLines}
}

type dedupLine struct {
	text   string
	repeat int
}

func dedup(lines []string) []dedupLine {
	var out []dedupLine
	for _, l := range lines {
		if n := len(out); n > 0 && out[n-1].text == l {
			out[n-1].repeat++
			continue
		}
		out = append(out, dedupLine{text: l, repeat: 1})
	}
	return out
}

func (d dedupLine) render() string {
	if d.repeat <= 1 {
		return d.text
	}
	return fmt.Sprintf("%s [repeated %d×]", d.text, d.repeat)
}

const (
	tierError = iota
	tierWarning
	tierInfo
)

type region struct {
	tier      int
	start     int // index in the deduped slice
	lines     []dedupLine
	signalIdx map[int]bool // indices (relative to lines) that are the actual signal line
}

func buildRegions(lines []dedupLine, contextLines int) []*region {
	n := len(lines)
	isCore := make([]bool, n)
	for i, l := range lines {
		if prio, _, ok := logsignal.Classify(l.text); ok && prio == logsignal.PriorityError {
			isCore[i] = true
		}
	}
	inErrorRegion := make([]bool, n)
	for i := range lines {
		if !isCore[i] {
			continue
		}
		for j := i - contextLines; j <= i+contextLines; j++ {
			if j >= 0 && j < n {
				inErrorRegion[j] = true
			}
		}
	}

	tierOf := func(i int) int {
		if inErrorRegion[i] {
			return tierError
		}
		prio, _, matched := logsignal.Classify(lines[i].text)
		if matched && prio == logsignal.PriorityWarning {
			return tierWarning
		}
		return tierInfo
	}

	var regions []*region
	var cur *region
	for i := range lines {
		t := tierOf(i)
		if cur == nil || cur.tier != t {
			cur = &region{tier: t, start: i, signalIdx: map[int]bool{}}
			regions = append(regions, cur)
		}
		if isCore[i] {
			cur.signalIdx[len(cur.lines)] = true
		}
		cur.lines = append(cur.lines, lines[i])
	}
	return regions
}

func (r *region) render() string {
	parts := make([]string, len(r.lines))
	for i, l := range r.lines {
		parts[i] = l.render()
	}
	return strings.Join(parts, "\n")
}

// truncateMiddle drops context lines from the middle of an error region
// until it fits within budget tokens, always keeping every signal line.
// Returns the rendered text and whether anything was cut.
func (r *region) truncateMiddle(counter *tokencount.Counter, family tokencount.ModelFamily, budget uint32) (string, bool) {
	keep := make([]bool, len(r.lines))
	for i := range keep {
		keep[i] = true
	}
	fits := func() (string, uint32) {
		var kept []string
		omitted := 0
		var out []string
		for i, l := range r.lines {
			if keep[i] {
				if omitted > 0 {
					out = append(out, fmt.Sprintf("[… %d lines omitted …]", omitted))
					omitted = 0
				}
				out = append(out, l.render())
				kept = append(kept, l.render())
			} else {
				omitted++
			}
		}
		if omitted > 0 {
			out = append(out, fmt.Sprintf("[… %d lines omitted …]", omitted))
		}
		text := strings.Join(out, "\n")
		n, _ := counter.Count(text, family)
		return text, n
	}

	text, n := fits()
	if n <= budget {
		return text, false
	}

	mid := len(r.lines) / 2
	truncated := false
	for d := 0; n > budget && (mid+d < len(r.lines) || mid-d-1 >= 0); d++ {
		for _, i := range []int{mid + d, mid - d - 1} {
			if n <= budget || i < 0 || i >= len(r.lines) || r.signalIdx[i] {
				continue
			}
			keep[i] = false
			truncated = true
			text, n = fits()
		}
	}
	return text, truncated
}

// Compress reduces text to budget tokens for family, per C3's algorithm:
// dedup runs, split into error/warning/info regions, keep error regions in
// full (truncating context from the middle if needed), then warning, then
// info regions greedily until the budget is spent.
func (c *Compressor) Compress(text string, budget uint32, family tokencount.ModelFamily) (Result, error) {
	if budget == 0 {
		return Result{}, fmt.Errorf("compress: budget must be > 0")
	}

	lines := dedup(strings.Split(text, "\n"))
	regions := buildRegions(lines, c.contextLines)

	kept := make([]string, len(regions))
	present := make([]bool, len(regions))
	var used uint32
	truncated := false

	order := []int{tierError, tierWarning, tierInfo}
	for _, tier := range order {
		for i, r := range regions {
			if r.tier != tier || present[i] {
				continue
			}
			rendered := r.render()
			n, err := c.counter.Count(rendered, family)
			if err != nil {
				return Result{}, err
			}
			if used+n <= budget {
				kept[i] = rendered
				present[i] = true
				used += n
				continue
			}
			if tier == tierError {
				remaining := budget - used
				text, cut := r.truncateMiddle(c.counter, family, remaining)
				kept[i] = text
				present[i] = true
				if cut {
					truncated = true
				}
				n, _ := c.counter.Count(text, family)
				used += n
				continue
			}
			// Warning/info region doesn't fit: elide it entirely.
			marker := fmt.Sprintf("[… %d lines omitted …]", len(r.lines))
			mn, _ := c.counter.Count(marker, family)
			if used+mn <= budget {
				kept[i] = marker
				present[i] = true
				used += mn
			}
		}
	}

	var out []string
	for i, r := range regions {
		if present[i] {
			out = append(out, kept[i])
		} else if r.tier == tierError {
			// Should be unreachable: error regions are always kept above.
			out = append(out, r.render())
		}
	}
	if used > budget {
		truncated = true
	}

	return Result{Text: strings.Join(out, "\n"), Truncated: truncated}, nil
}
