package usecase

import (
	"fmt"
	"strings"

	"RegIngest/internal/domain"
)

const failureExcerpt = 5

// buildJobSummary renders a short plain-text report of a finished job.
func buildJobSummary(source string, stats domain.RunStats, errMsg string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (job %s)\n", source, stats.Status, stats.JobID)

	if errMsg != "" {
		fmt.Fprintf(&b, "Error: %s\n", errMsg)
		return b.String()
	}

	fmt.Fprintf(&b, "Provisions: %d, enriched: %d, failed: %d\n", stats.Provisions, stats.Enriched, stats.Failed)
	fmt.Fprintf(&b, "Articles: +%d new, %d updated, %d unchanged; obligations: +%d\n",
		stats.Persist.ArticlesInserted,
		stats.Persist.ArticlesUpdated,
		stats.Persist.ArticlesUnchanged,
		stats.Persist.ObligationsInserted)
	fmt.Fprintf(&b, "Tokens: %d in / %d out, est. $%.4f\n",
		stats.Usage.InputTokens, stats.Usage.OutputTokens, stats.EstimatedCostUSD)

	b.WriteString(FormatFailures(stats.Failures, stats.Failed))
	return b.String()
}

// FormatFailures lists the first few failed provisions with a "+N more" elision.
// total may exceed len(failures) when the list was truncated upstream.
func FormatFailures(failures []domain.FailureSummary, total int) string {
	if total < len(failures) {
		total = len(failures)
	}
	if total == 0 {
		return ""
	}

	var b strings.Builder
	shown := failures
	if len(shown) > failureExcerpt {
		shown = shown[:failureExcerpt]
	}
	for _, f := range shown {
		fmt.Fprintf(&b, "  - Article %s: %s\n", f.Number, f.Error)
	}
	if rest := total - len(shown); rest > 0 {
		fmt.Fprintf(&b, "  +%d more\n", rest)
	}
	return b.String()
}
