package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-riddler/infrastructure/llm"
)

// ErrBudgetExceeded matches every *BudgetExceededError.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Budget caps what one backend may consume during a run. Zero fields are
// unlimited.
type Budget struct {
	// MaxTokens limits input plus output tokens.
	MaxTokens int64
	// MaxCalls limits requests. A retried request counts once.
	MaxCalls int64
}

// Unlimited reports whether neither limit is set.
func (b Budget) Unlimited() bool { return b.MaxTokens <= 0 && b.MaxCalls <= 0 }

// Validate rejects negative limits.
func (b Budget) Validate() error {
	if b.MaxTokens < 0 {
		return fmt.Errorf("budget: max_tokens cannot be negative, got %d", b.MaxTokens)
	}
	if b.MaxCalls < 0 {
		return fmt.Errorf("budget: max_calls cannot be negative, got %d", b.MaxCalls)
	}
	return nil
}

// Usage is what a backend has consumed so far.
type Usage struct {
	Tokens int64
	Calls  int64
}

// BudgetExceededError reports the limit a backend ran into.
type BudgetExceededError struct {
	Backend   string
	LimitType string
	Limit     int64
	Used      int64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded for %s: used %d of %d", e.LimitType, e.Backend, e.Used, e.Limit)
}

// Is makes errors.Is(err, ErrBudgetExceeded) hold.
func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }

// BudgetObserver provides observability hooks for budget enforcement. One
// observer is shared by every backend, so implementations must be safe for
// concurrent use.
type BudgetObserver interface {
	// PreCheck is called before the limits are checked for a request.
	PreCheck(ctx context.Context, backend string, usage Usage, budget Budget)

	// PostCheck is called after the request, or after it was refused, with
	// the updated usage.
	PostCheck(ctx context.Context, backend string, usage Usage, budget Budget, elapsed time.Duration, err error)
}

type budgetLLM struct {
	next     llm.CoreLLM
	budget   Budget
	observer BudgetObserver

	mu    sync.Mutex
	usage Usage
}

// BudgetMiddleware gives each wrapped backend its own token and call
// allowance. Once either is spent, requests fail with a *BudgetExceededError
// without reaching the backend. The response that crosses the token limit is
// still returned. Place it outside RetryMiddleware so a refused request is
// not retried.
func BudgetMiddleware(budget Budget, observer BudgetObserver) llm.Middleware {
	return func(next llm.CoreLLM) llm.CoreLLM {
		if budget.Unlimited() {
			return next
		}
		return &budgetLLM{next: next, budget: budget, observer: observer}
	}
}

func (b *budgetLLM) DoRequest(ctx context.Context, prompt string, opts llm.RequestOptions) (string, llm.Usage, error) {
	backend := b.backend()

	b.mu.Lock()
	usage := b.usage
	if b.observer != nil {
		b.observer.PreCheck(ctx, backend, usage, b.budget)
	}
	if err := b.check(usage); err != nil {
		b.mu.Unlock()
		if b.observer != nil {
			b.observer.PostCheck(ctx, backend, usage, b.budget, 0, err)
		}
		return "", llm.Usage{}, err
	}
	b.usage.Calls++
	b.mu.Unlock()

	start := time.Now()
	text, u, err := b.next.DoRequest(ctx, prompt, opts)
	elapsed := time.Since(start)

	b.mu.Lock()
	b.usage.Tokens += int64(u.InputTokens + u.OutputTokens)
	usage = b.usage
	b.mu.Unlock()

	if b.observer != nil {
		b.observer.PostCheck(ctx, backend, usage, b.budget, elapsed, err)
	}
	return text, u, err
}

func (b *budgetLLM) check(usage Usage) error {
	if b.budget.MaxCalls > 0 && usage.Calls >= b.budget.MaxCalls {
		return &BudgetExceededError{Backend: b.backend(), LimitType: "calls", Limit: b.budget.MaxCalls, Used: usage.Calls}
	}
	if b.budget.MaxTokens > 0 && usage.Tokens >= b.budget.MaxTokens {
		return &BudgetExceededError{Backend: b.backend(), LimitType: "tokens", Limit: b.budget.MaxTokens, Used: usage.Tokens}
	}
	return nil
}

func (b *budgetLLM) backend() string { return b.next.Provider() + "/" + b.next.GetModel() }

func (b *budgetLLM) GetModel() string { return b.next.GetModel() }

func (b *budgetLLM) Provider() string { return b.next.Provider() }
