package application

import (
	"github.com/ahrav/go-riddler/internal/domain"
	"github.com/ahrav/go-riddler/internal/ports"
)

// tournamentState is everything one Run mutates. It is owned by a single
// goroutine, so it carries no locks.
type tournamentState struct {
	participants []domain.Participant
	sources      map[string]ports.RiddleSource
	// active holds participants that have not failed. Removal is permanent.
	active map[string]struct{}
	// used lists accepted riddle prompts in acceptance order.
	used    []string
	board   domain.Scoreboard
	results []domain.MatchResult
}

func newTournamentState(participants []domain.Participant) *tournamentState {
	active := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		active[p.ID] = struct{}{}
	}
	return &tournamentState{
		participants: participants,
		sources:      make(map[string]ports.RiddleSource, len(participants)),
		active:       active,
		board:        domain.NewScoreboard(participants),
	}
}

func (s *tournamentState) isActive(id string) bool {
	_, ok := s.active[id]
	return ok
}

// deactivate reports whether id was active.
func (s *tournamentState) deactivate(id string) bool {
	if _, ok := s.active[id]; !ok {
		return false
	}
	delete(s.active, id)
	return true
}

func (s *tournamentState) activeCount() int { return len(s.active) }

func (s *tournamentState) record(r domain.MatchResult) {
	s.results = append(s.results, r)
	s.board.Record(r)
}
