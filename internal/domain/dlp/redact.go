package dlp

import "sort"

// region is a merged run of overlapping rewrite spans.
type region struct {
	span     Span
	dominant Finding
}

// Redact replaces every redact/block span in text with its label.
//
// Regions are rewritten right-to-left in descending start order, so a
// replacement never moves the offsets of spans still waiting to its left.
// Overlapping spans are merged first and rewritten once.
func Redact(text string, findings []Finding) string {
	regions := mergeRegions(text, findings)
	if len(regions) == 0 {
		return text
	}

	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].span.Start > regions[j].span.Start
	})

	out := text
	for _, r := range regions {
		out = out[:r.span.Start] + r.dominant.DataType.Label() + out[r.span.End:]
	}
	return out
}

func mergeRegions(text string, findings []Finding) []region {
	candidates := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if !f.Action.Rewrites() {
			continue
		}
		f.Span = clamp(f.Span, len(text))
		if f.Span.Len() <= 0 {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Span.Start != candidates[j].Span.Start {
			return candidates[i].Span.Start < candidates[j].Span.Start
		}
		return candidates[i].Span.End > candidates[j].Span.End
	})

	regions := []region{{span: candidates[0].Span, dominant: candidates[0]}}
	for _, f := range candidates[1:] {
		last := &regions[len(regions)-1]
		if !last.span.Overlaps(f.Span) {
			regions = append(regions, region{span: f.Span, dominant: f})
			continue
		}
		if f.Span.End > last.span.End {
			last.span.End = f.Span.End
		}
		if dominates(f, last.dominant) {
			last.dominant = f
		}
	}
	return regions
}

// dominates ranks block over redact, then the longer span. Earlier start wins
// ties because candidates arrive in start order.
func dominates(a, b Finding) bool {
	if a.Action != b.Action {
		return a.Action == ActionBlock
	}
	return a.Span.Len() > b.Span.Len()
}

func clamp(s Span, n int) Span {
	if s.Start < 0 {
		s.Start = 0
	}
	if s.End > n {
		s.End = n
	}
	return s
}
