package domain

import (
	"math"
	"sort"
)

// Tally holds a participant's correct answers per category.
type Tally struct {
	Word       int `json:"word_correct"`
	Arithmetic int `json:"arithmetic_correct"`
}

// Get returns the count for category c.
func (t Tally) Get(c Category) int {
	if c == CategoryWord {
		return t.Word
	}
	return t.Arithmetic
}

// Scoreboard maps participant IDs to their tallies. Only Record mutates it.
type Scoreboard map[string]Tally

// NewScoreboard creates a scoreboard with a zero tally for every participant.
func NewScoreboard(participants []Participant) Scoreboard {
	sb := make(Scoreboard, len(participants))
	for _, p := range participants {
		sb[p.ID] = Tally{}
	}
	return sb
}

// Record folds one result into the scoreboard. Incorrect results change
// nothing.
func (sb Scoreboard) Record(r MatchResult) {
	if !r.Correct {
		return
	}
	t := sb[r.Solver.ID]
	switch r.Category {
	case CategoryWord:
		t.Word++
	case CategoryArithmetic:
		t.Arithmetic++
	default:
		return
	}
	sb[r.Solver.ID] = t
}

// SummaryRow is one line of a per-category summary table.
type SummaryRow struct {
	Participant   string  `json:"participant"`
	Correct       int     `json:"correct"`
	TotalPossible int     `json:"total_possible"`
	SuccessRate   float64 `json:"success_rate"`
}

// Summary is the scoreboard plus one ranked table per category.
type Summary struct {
	Scoreboard Scoreboard                `json:"scoreboard"`
	Tables     map[Category][]SummaryRow `json:"tables"`
}

// Table returns the ranked rows for category c.
func (s Summary) Table(c Category) []SummaryRow { return s.Tables[c] }

// Summarize folds results into a scoreboard and derives per-category success
// rates. The denominator for a category is the number of questions every
// participant could have faced: (participants-1) × rounds of that category.
// Rows are ordered by descending rate; ties keep configured order.
func Summarize(results []MatchResult, participants []Participant, roundsPerParticipant int) Summary {
	board := NewScoreboard(participants)
	for _, r := range results {
		board.Record(r)
	}

	opponents := len(participants) - 1
	if opponents < 0 {
		opponents = 0
	}

	tables := make(map[Category][]SummaryRow, len(Categories))
	for _, c := range Categories {
		total := opponents * RoundsOf(c, roundsPerParticipant)
		rows := make([]SummaryRow, 0, len(participants))
		for _, p := range participants {
			correct := board[p.ID].Get(c)
			rows = append(rows, SummaryRow{
				Participant:   p.ID,
				Correct:       correct,
				TotalPossible: total,
				SuccessRate:   SuccessRate(correct, total),
			})
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].SuccessRate > rows[j].SuccessRate
		})
		tables[c] = rows
	}

	return Summary{Scoreboard: board, Tables: tables}
}

// SuccessRate returns 100×correct/total rounded to two decimals, or 0 when
// total is not positive.
func SuccessRate(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*100*100) / 100
}
