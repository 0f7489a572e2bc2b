package digest

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"feedbackdesk/internal/domain"
)

const highlightSummaryLimit = 80

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "…"
}

func windowLabel(w Window) string {
	return w.From.UTC().Format(time.RFC3339) + " → " + w.To.UTC().Format(time.RFC3339)
}

func statusOrder(byStatus map[string]int) []string {
	keys := make([]string, 0, len(byStatus))
	for _, st := range domain.AllStatuses() {
		keys = append(keys, string(st))
	}
	if _, ok := byStatus[unknownStatus]; ok {
		keys = append(keys, unknownStatus)
	}
	return keys
}

func distribution(counts map[string]int, keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	return strings.Join(parts, " · ")
}

func severityKeys() []string {
	keys := make([]string, 0, domain.MaxSeverity)
	for sev := domain.MinSeverity; sev <= domain.MaxSeverity; sev++ {
		keys = append(keys, severityKey(sev))
	}
	return keys
}

// FormatSlack renders r as Slack mrkdwn text.
func FormatSlack(r Report) string {
	lines := []string{
		fmt.Sprintf("*Daily Feedback Digest* (%s)", windowLabel(r.Window)),
		fmt.Sprintf("• Analyzed: *%d*  |  High severity (S4–S5): *%d*", r.Totals.Analyzed, r.Totals.HighSeverity),
		fmt.Sprintf("• New feedback created in window (status NEW): *%d*", r.Highlights.RecentNewCount),
		"• By status: " + distribution(r.Totals.ByStatus, statusOrder(r.Totals.ByStatus)),
		"• By severity: " + distribution(r.Totals.BySeverity, severityKeys()),
	}
	if len(r.Highlights.HighSeverityItems) > 0 {
		lines = append(lines, "", "*High severity items:*")
		for _, item := range r.Highlights.HighSeverityItems {
			lines = append(lines, fmt.Sprintf("• [%s] %s S%d – %s",
				item.Source, item.Status, item.Severity, truncate(item.Summary, highlightSummaryLimit)))
		}
	}
	if len(r.Highlights.StatusChanges) > 0 {
		lines = append(lines, "", "*Recent status changes:*")
		for _, c := range r.Highlights.StatusChanges {
			lines = append(lines, fmt.Sprintf("• [%s] %s → %s by %s", c.FeedbackSource, c.FromStatus, c.ToStatus, c.UserEmail))
		}
	}
	return strings.Join(lines, "\n")
}

// FormatMarkdown renders r as GitHub-flavoured Markdown for e-mail.
func FormatMarkdown(r Report) string {
	var b strings.Builder
	b.WriteString("### Daily Feedback Digest\n\n")
	fmt.Fprintf(&b, "**Window:** %s\n\n", windowLabel(r.Window))
	fmt.Fprintf(&b, "- Analyzed: **%d**\n", r.Totals.Analyzed)
	fmt.Fprintf(&b, "- High severity (S4–S5): **%d**\n", r.Totals.HighSeverity)
	fmt.Fprintf(&b, "- New feedback created in window (status NEW): **%d**\n\n", r.Highlights.RecentNewCount)

	b.WriteString("#### Distribution\n\n| Bucket | Count |\n|---|---|\n")
	for _, k := range statusOrder(r.Totals.ByStatus) {
		fmt.Fprintf(&b, "| %s | %d |\n", k, r.Totals.ByStatus[k])
	}
	for _, k := range severityKeys() {
		fmt.Fprintf(&b, "| %s | %d |\n", k, r.Totals.BySeverity[k])
	}

	b.WriteString("\n#### High severity items\n\n")
	if len(r.Highlights.HighSeverityItems) == 0 {
		b.WriteString("No high severity items in this window.\n")
	}
	for _, item := range r.Highlights.HighSeverityItems {
		fmt.Fprintf(&b, "- [%s] %s S%d – %s\n",
			escapeMarkdown(item.Source), item.Status, item.Severity,
			escapeMarkdown(truncate(item.Summary, highlightSummaryLimit)))
	}

	b.WriteString("\n#### Recent status changes\n\n")
	if len(r.Highlights.StatusChanges) == 0 {
		b.WriteString("No status changes in this window.\n")
	}
	for _, c := range r.Highlights.StatusChanges {
		fmt.Fprintf(&b, "- [%s] %s → %s by %s\n",
			escapeMarkdown(c.FeedbackSource), c.FromStatus, c.ToStatus, escapeMarkdown(c.UserEmail))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", "|", `\|`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(strings.ReplaceAll(s, "\n", " "))
}
