package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ahrav/go-riddler/internal/domain"
)

var (
	colorAccent = lipgloss.Color("#20B9B4")
	colorBorder = lipgloss.Color("#2C4A54")
	colorMuted  = lipgloss.Color("#7A8C93")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// categoryTitles names each summary table.
var categoryTitles = map[domain.Category]string{
	domain.CategoryWord:       "Word riddles",
	domain.CategoryArithmetic: "Arithmetic riddles",
}

// Meta identifies the run a summary belongs to.
type Meta struct {
	RunID        string    `json:"run_id"`
	Name         string    `json:"name,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Rounds       int       `json:"rounds_per_participant"`
	Participants int       `json:"participants"`
	Results      int       `json:"results"`
	// Interrupted is set when the run stopped before every round was played.
	Interrupted bool `json:"interrupted,omitempty"`
}

// RenderSummary renders one table per category, in domain.Categories order,
// under a heading that identifies the run.
func RenderSummary(meta Meta, summary domain.Summary) string {
	var b strings.Builder

	heading := "Riddle tournament"
	if meta.Name != "" {
		heading += ": " + meta.Name
	}
	b.WriteString(titleStyle.Render(heading))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("run %s, %d participants, %d rounds each, %d answers",
		meta.RunID, meta.Participants, meta.Rounds, meta.Results)))
	if meta.Interrupted {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("interrupted: results are partial"))
	}
	b.WriteString("\n")

	for _, c := range domain.Categories {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render(categoryTitles[c]))
		b.WriteString("\n")
		b.WriteString(RenderTable(summary.Table(c)))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderTable renders summary rows as a bordered table.
func RenderTable(rows []domain.SummaryRow) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers("Participant", "Correct", "Total possible", "Success rate %").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			default:
				return numberStyle
			}
		})

	for _, r := range rows {
		t.Row(
			r.Participant,
			strconv.Itoa(r.Correct),
			strconv.Itoa(r.TotalPossible),
			strconv.FormatFloat(r.SuccessRate, 'f', 2, 64),
		)
	}
	return t.Render()
}

// summaryDocument is the JSON form of a run summary.
type summaryDocument struct {
	Meta
	domain.Summary
}

// WriteSummaryJSON writes meta and summary as indented JSON.
func WriteSummaryJSON(w io.Writer, meta Meta, summary domain.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaryDocument{Meta: meta, Summary: summary}); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
