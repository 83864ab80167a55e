package forms

import "strings"

// SummaryStyle selects how next-step names are joined.
type SummaryStyle int

const (
	// SummaryExclusive joins alternatives with a slash.
	SummaryExclusive SummaryStyle = iota
	// SummaryInclusive joins options with a middle dot.
	SummaryInclusive
	// SummaryParallel joins concurrent steps with commas.
	SummaryParallel
)

// Separator returns the join string of the style.
func (s SummaryStyle) Separator() string {
	switch s {
	case SummaryParallel:
		return ", "
	case SummaryInclusive:
		return " · "
	default:
		return " / "
	}
}

// Summary joins the non-empty names, dropping duplicates.
func Summary(style SummaryStyle, names []string) string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return strings.Join(out, style.Separator())
}
