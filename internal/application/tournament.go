package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-riddler/infrastructure/matching"
	"github.com/ahrav/go-riddler/internal/domain"
	"github.com/ahrav/go-riddler/internal/ports"
)

// DefaultMaxAcquireAttempts is how many times a setter is asked for a riddle
// before the fallback is used.
const DefaultMaxAcquireAttempts = 3

// TracerName identifies spans created by the tournament.
const TracerName = "github.com/ahrav/go-riddler/internal/application"

// Metric names recorded by the tournament.
const (
	MetricRiddlesTotal        = "tournament_riddles_total"
	MetricAcquireErrorsTotal  = "tournament_acquire_errors_total"
	MetricDuplicatesTotal     = "tournament_duplicates_total"
	MetricAnswersTotal        = "tournament_answers_total"
	MetricDeactivationsTotal  = "tournament_deactivations_total"
	MetricRoundsSkippedTotal  = "tournament_rounds_skipped_total"
	MetricActiveParticipants  = "tournament_active_participants"
	MetricRoundLatencySeconds = "tournament_round_latency_seconds"
)

// DuplicateChecker decides whether a candidate riddle repeats one already
// used. *matching.UniquenessFilter implements it.
type DuplicateChecker interface {
	IsDuplicate(candidate string, history []string) bool
}

// AnswerChecker scores a solver's answer. *matching.AnswerValidator
// implements it.
type AnswerChecker interface {
	IsCorrect(given, reference string, category domain.Category) (bool, error)
}

// FallbackSource supplies a riddle when a setter cannot. *FallbackGenerator
// implements it.
type FallbackSource interface {
	Riddle(category domain.Category, used []string) domain.Riddle
}

// TournamentConfig wires a Tournament's collaborators. Zero fields get
// defaults.
type TournamentConfig struct {
	MaxAcquireAttempts int
	Filter             DuplicateChecker
	Validator          AnswerChecker
	Fallback           FallbackSource
	Metrics            ports.MetricsCollector
	TracerProvider     trace.TracerProvider
	Logger             *slog.Logger
}

// Tournament runs a round-robin riddle contest. Each participant in turn sets
// riddles that every other active participant tries to answer. It is not safe
// for concurrent Runs.
type Tournament struct {
	resolver    ports.SourceResolver
	maxAttempts int
	filter      DuplicateChecker
	validator   AnswerChecker
	fallback    FallbackSource
	metrics     ports.MetricsCollector
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewTournament returns a tournament that resolves participants through
// resolver.
func NewTournament(resolver ports.SourceResolver, config TournamentConfig) (*Tournament, error) {
	if resolver == nil {
		return nil, errors.New("source resolver cannot be nil")
	}

	t := &Tournament{
		resolver:    resolver,
		maxAttempts: config.MaxAcquireAttempts,
		filter:      config.Filter,
		validator:   config.Validator,
		fallback:    config.Fallback,
		metrics:     config.Metrics,
		logger:      config.Logger,
	}

	if t.maxAttempts <= 0 {
		t.maxAttempts = DefaultMaxAcquireAttempts
	}
	if t.filter == nil {
		f, err := matching.NewUniquenessFilter(matching.DefaultUniquenessConfig())
		if err != nil {
			return nil, err
		}
		t.filter = f
	}
	if t.validator == nil {
		v, err := matching.NewAnswerValidator(matching.DefaultValidatorConfig())
		if err != nil {
			return nil, err
		}
		t.validator = v
	}
	if t.fallback == nil {
		t.fallback = NewFallbackGenerator(0)
	}
	if t.metrics == nil {
		t.metrics = nopMetrics{}
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	t.tracer = tp.Tracer(TracerName)

	return t, nil
}

// Run plays the whole tournament and returns the ledger in play order.
// Backend failures never abort the run; they only deactivate participants.
// If ctx is done, Run stops between calls and returns the results of the
// rounds completed so far together with ctx's error.
func (t *Tournament) Run(ctx context.Context, participants []domain.Participant, roundsPerParticipant int) ([]domain.MatchResult, error) {
	if len(participants) == 0 {
		return nil, domain.ErrNoParticipants
	}
	if roundsPerParticipant < 1 {
		return nil, fmt.Errorf("%w: rounds per participant must be positive, got %d",
			domain.ErrInvalidConfiguration, roundsPerParticipant)
	}

	ctx, span := t.tracer.Start(ctx, "tournament.run", trace.WithAttributes(
		attribute.Int("tournament.participants", len(participants)),
		attribute.Int("tournament.rounds_per_participant", roundsPerParticipant),
	))
	defer span.End()

	state := newTournamentState(participants)
	t.resolveSources(state)

	for _, setter := range participants {
		for round := 0; round < roundsPerParticipant; round++ {
			if !state.isActive(setter.ID) {
				break
			}
			if err := ctx.Err(); err != nil {
				return t.finish(span, state, err)
			}
			if err := t.playRound(ctx, state, setter, round, roundsPerParticipant); err != nil {
				return t.finish(span, state, err)
			}
		}
	}

	return t.finish(span, state, nil)
}

func (t *Tournament) finish(span trace.Span, state *tournamentState, err error) ([]domain.MatchResult, error) {
	span.SetAttributes(
		attribute.Int("tournament.results", len(state.results)),
		attribute.Int("tournament.active", state.activeCount()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.Warn("tournament stopped early", "results", len(state.results), "error", err)
	} else {
		t.logger.Info("tournament finished", "results", len(state.results), "active", state.activeCount())
	}
	for _, p := range state.participants {
		tally := state.board[p.ID]
		t.logger.Debug("final score", "participant", p.ID, "word", tally.Word, "arithmetic", tally.Arithmetic)
	}
	return state.results, err
}

// resolveSources builds every participant's source. A participant whose
// backend cannot be built never plays.
func (t *Tournament) resolveSources(state *tournamentState) {
	for _, p := range state.participants {
		src, err := t.resolver.Resolve(p)
		if err != nil {
			t.logger.Warn("participant unavailable", "participant", p.ID, "model", p.Model, "error", err)
			t.deactivate(state, p, "resolve")
			continue
		}
		state.sources[p.ID] = src
	}
	t.metrics.RecordGauge(MetricActiveParticipants, float64(state.activeCount()), nil)
}

// playRound runs one setter round. It returns an error only when ctx is done;
// every other failure is absorbed here.
func (t *Tournament) playRound(ctx context.Context, state *tournamentState, setter domain.Participant, round, roundsPerParticipant int) (err error) {
	category := domain.CategoryForRound(round, roundsPerParticipant)
	logger := t.logger.With("setter", setter.ID, "round", round+1, "category", category)

	ctx, span := t.tracer.Start(ctx, "tournament.round", trace.WithAttributes(
		attribute.String("tournament.setter", setter.ID),
		attribute.Int("tournament.round", round+1),
		attribute.String("tournament.category", category.String()),
	))
	start := time.Now()
	defer func() {
		t.metrics.RecordLatency(MetricRoundLatencySeconds, time.Since(start), map[string]string{"setter": setter.ID})
		span.End()
	}()

	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("panic during round: %v", r)
			logger.Error("round skipped", "error", perr)
			span.RecordError(perr)
			span.SetStatus(codes.Error, "round skipped")
			t.metrics.RecordCounter(MetricRoundsSkippedTotal, 1, map[string]string{"setter": setter.ID})
			err = nil
		}
	}()

	riddle, allErrored, err := t.acquire(ctx, state, setter, category, logger)
	if err != nil {
		return err
	}
	state.used = append(state.used, riddle.Prompt)

	if allErrored {
		// The round still plays with the fallback riddle; the setter sets no
		// further rounds.
		logger.Warn("every riddle request failed", "attempts", t.maxAttempts)
		t.deactivate(state, setter, "setter")
	}

	rows := make([]domain.MatchResult, 0, len(state.participants)-1)
	for _, solver := range state.participants {
		if solver.ID == setter.ID || !state.isActive(solver.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		answer, err := state.sources[solver.ID].Solve(ctx, riddle.Prompt)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn("solver failed", "solver", solver.ID, "error", err)
			t.deactivate(state, solver, "solver")
			continue
		}

		correct, err := t.validator.IsCorrect(answer, riddle.Answer, category)
		if err != nil {
			logger.Error("round skipped", "solver", solver.ID, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "round skipped")
			t.metrics.RecordCounter(MetricRoundsSkippedTotal, 1, map[string]string{"setter": setter.ID})
			return nil
		}

		logger.Debug("answer scored", "solver", solver.ID, "answer", answer, "correct", correct)
		rows = append(rows, domain.MatchResult{
			Round:           round + 1,
			Category:        category,
			Setter:          setter,
			Solver:          solver,
			Prompt:          riddle.Prompt,
			ReferenceAnswer: riddle.Answer,
			Explanation:     riddle.Explanation,
			GivenAnswer:     answer,
			Correct:         correct,
		})
	}

	for _, r := range rows {
		state.record(r)
		t.metrics.RecordCounter(MetricAnswersTotal, 1, map[string]string{
			"solver":   r.Solver.ID,
			"category": r.Category.String(),
			"correct":  strconv.FormatBool(r.Correct),
		})
	}
	span.SetAttributes(attribute.Int("tournament.answers", len(rows)))
	return nil
}

// acquire asks the setter for a riddle up to maxAttempts times. Word riddles
// must pass the duplicate filter. When no attempt succeeds the fallback
// riddle is returned, and allErrored reports whether every attempt failed
// with an error rather than a duplicate.
func (t *Tournament) acquire(ctx context.Context, state *tournamentState, setter domain.Participant, category domain.Category, logger *slog.Logger) (r domain.Riddle, allErrored bool, err error) {
	src := state.sources[setter.ID]
	labels := map[string]string{"setter": setter.ID, "category": category.String()}

	errored := 0
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Riddle{}, false, err
		}

		candidate, err := acquireOnce(ctx, src, category)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Riddle{}, false, ctxErr
			}
			errored++
			kind := "provider"
			switch {
			case domain.IsParseError(err):
				kind = "parse"
			case errors.Is(err, errSourcePanic):
				kind = "panic"
			}
			logger.Warn("riddle request failed", "attempt", attempt, "kind", kind, "error", err)
			t.metrics.RecordCounter(MetricAcquireErrorsTotal, 1, withLabel(labels, "kind", kind))
			continue
		}

		candidate.Category = category
		if category == domain.CategoryWord && t.filter.IsDuplicate(candidate.Prompt, state.used) {
			logger.Info("duplicate riddle rejected", "attempt", attempt, "riddle", candidate.Prompt)
			t.metrics.RecordCounter(MetricDuplicatesTotal, 1, labels)
			continue
		}

		t.metrics.RecordCounter(MetricRiddlesTotal, 1, withLabel(labels, "outcome", "accepted"))
		return candidate, false, nil
	}

	logger.Info("using fallback riddle", "attempts", t.maxAttempts, "errors", errored)
	t.metrics.RecordCounter(MetricRiddlesTotal, 1, withLabel(labels, "outcome", "fallback"))
	return t.fallback.Riddle(category, state.used), errored == t.maxAttempts, nil
}

var errSourcePanic = errors.New("riddle source panicked")

// acquireOnce makes a single Acquire call, turning a panic into an error so
// it counts as a failed attempt.
func acquireOnce(ctx context.Context, src ports.RiddleSource, category domain.Category) (r domain.Riddle, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = domain.Riddle{}, fmt.Errorf("%w: %v", errSourcePanic, p)
		}
	}()
	return src.Acquire(ctx, category)
}

func (t *Tournament) deactivate(state *tournamentState, p domain.Participant, role string) {
	if !state.deactivate(p.ID) {
		return
	}
	t.logger.Warn("participant deactivated", "participant", p.ID, "role", role)
	t.metrics.RecordCounter(MetricDeactivationsTotal, 1, map[string]string{"participant": p.ID, "role": role})
	t.metrics.RecordGauge(MetricActiveParticipants, float64(state.activeCount()), nil)
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

type nopMetrics struct{}

func (nopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (nopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (nopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (nopMetrics) RecordHistogram(string, float64, map[string]string)     {}
