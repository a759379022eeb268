package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-connectome/pkg/analytics"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF"))

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(22)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))
)

func row(label string, value any) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(fmt.Sprint(value)))
}

// renderSummary formats the global outcome of a run
func renderSummary(r *analytics.Report) string {
	cc := r.Clustering
	vm := r.Vertex

	result := []string{
		row("run", r.RunID),
		row("ranks", r.WorldSize),
		row("nodes", r.TotalNodes),
		row("strategy", r.Strategy),
		row("triangle mode", cc.Mode),
		row("mean clustering", fmt.Sprintf("%.6f", cc.Mean)),
		row("nodes in mean", cc.Count),
		row("closed pairs", cc.TriangleIncidences),
	}
	graph := []string{
		row("edges", vm.TotalOut),
		row("isolated nodes", vm.Isolated),
		row("max degree", vm.MaxDegree),
		row("edge cuts", vm.EdgeCuts()),
		row("cut ratio", fmt.Sprintf("%.3f", vm.Partition.CutRatio)),
		row("load balance", fmt.Sprintf("%.3f", vm.Partition.LoadBalance)),
	}
	var stages []string
	for _, s := range r.Stages {
		stages = append(stages, row(s.Stage, s.Duration.Round(time.Microsecond)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("graphcc"),
		lipgloss.JoinHorizontal(lipgloss.Top,
			boxStyle.Render(strings.Join(result, "\n")),
			boxStyle.Render(strings.Join(graph, "\n")),
		),
		boxStyle.Render(strings.Join(stages, "\n")),
	)
}
