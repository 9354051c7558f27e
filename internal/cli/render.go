package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/leofalp/devforge/internal/pipeline"
	"github.com/leofalp/devforge/patterns/graph"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E3B341"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// renderEvent formats one stream event. A completed node is followed by the
// log entries it added. Run-level events other than the start are left to
// renderSummary.
func renderEvent(ev graph.Event) (string, bool) {
	switch ev.Status {
	case graph.EventRunStarted:
		return titleStyle.Render("run " + ev.RunID), true
	case graph.EventStarted:
		return dimStyle.Render("  … " + ev.Node), true
	case graph.EventCompleted:
		detail := fmt.Sprintf("#%d", ev.Sequence)
		if ev.Tier != "" {
			detail += " via " + ev.Tier
		}
		line := okStyle.Render("  ✓ "+ev.Node) + " " + dimStyle.Render(detail)
		for _, entry := range logEntries(ev.Delta) {
			line += "\n" + dimStyle.Render("      "+entry)
		}
		return line, true
	case graph.EventFailed:
		return failStyle.Render(fmt.Sprintf("  ✗ %s: %v", ev.Node, ev.Err)), true
	case graph.EventSkipped:
		return dimStyle.Render("  - " + ev.Node + " skipped"), true
	case graph.EventCheckpointFailed:
		return warnStyle.Render(fmt.Sprintf("  ! checkpoint of %s not saved: %v", ev.Node, ev.Err)), true
	default:
		return "", false
	}
}

// logEntries returns the log lines a node update appended.
func logEntries(delta map[string]any) []string {
	switch v := delta[pipeline.FieldLogs].(type) {
	case string:
		return []string{v}
	case []any:
		entries := make([]string, 0, len(v))
		for _, item := range v {
			entries = append(entries, fmt.Sprint(item))
		}
		return entries
	default:
		return nil
	}
}

func statusStyle(status graph.RunStatus) lipgloss.Style {
	switch status {
	case graph.RunCompleted:
		return okStyle
	case graph.RunCancelled:
		return warnStyle
	default:
		return failStyle
	}
}

// renderSummary formats the final box shown after a run.
func renderSummary(res *graph.RunResult, artifacts *pipeline.Artifacts) string {
	lines := []string{
		titleStyle.Render("devforge run ") + statusStyle(res.Status).Render(string(res.Status)),
		fmt.Sprintf("run id:    %s", res.RunID),
		fmt.Sprintf("duration:  %s", res.Duration().Round(time.Millisecond)),
		fmt.Sprintf("executed:  %d node(s)", len(res.Executed)),
	}
	if ov := res.Overview; ov != nil && ov.Requests > 0 {
		lines = append(lines, fmt.Sprintf("model:     %d request(s), %d token(s)", ov.Requests, ov.TotalUsage.TotalTokens))
	}
	if approval, _ := res.State[pipeline.FieldApproval].(string); approval != "" && approval != string(pipeline.Approved) {
		lines = append(lines, warnStyle.Render("approval:  "+approval))
	}
	if summary, _ := res.State[pipeline.FieldSummary].(string); summary != "" {
		lines = append(lines, "", summary)
	}
	if artifacts != nil {
		lines = append(lines, fmt.Sprintf("artifacts: %d file(s) in %s", len(artifacts.Files), artifacts.Dir))
	}
	if len(res.Errors) > 0 {
		lines = append(lines, "", failStyle.Render("errors:"))
		for _, e := range res.Errors {
			lines = append(lines, failStyle.Render("  "+e))
		}
	}
	if res.Status == graph.RunCancelled {
		lines = append(lines, "", warnStyle.Render("resume with: devforge resume "+res.RunID))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
