package anthropicllm

import (
	"context"
	"errors"
	"net/http"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/time/rate"

	"github.com/hhyun1051/teamh-orchestrator/llm"
)

// RateLimiter applies an AIMD-style adaptive token bucket in front of an
// llm.Provider, ported from the teacher's AdaptiveRateLimiter
// (features/model/middleware/ratelimit.go): it estimates the token cost of
// each StreamChat call, blocks the caller until that much capacity is
// available, and halves its budget on a 429 from the provider, recovering
// gradually on every successful call. The teacher's variant additionally
// coordinates the budget across a process cluster via a Pulse replicated
// map; this repo never adopted Pulse (DESIGN.md), so RateLimiter is
// process-local only — one instance per server, shared by every request.
type RateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// NewRateLimiter builds a RateLimiter with an initial and maximum
// tokens-per-minute budget. maxTPM <= 0 or less than initialTPM is clamped
// to initialTPM, so the budget never rises above its starting value; back-off
// on rate-limit errors and recovery up to that value still apply.
func NewRateLimiter(initialTPM, maxTPM float64) *RateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}

	return &RateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wrap returns an llm.Provider that enforces l in front of next's
// StreamChat calls.
func (l *RateLimiter) Wrap(next llm.Provider) llm.Provider {
	if next == nil {
		return nil
	}
	return &limitedProvider{next: next, limiter: l}
}

type limitedProvider struct {
	next    llm.Provider
	limiter *RateLimiter
}

// StreamChat implements llm.Provider.
func (p *limitedProvider) StreamChat(ctx context.Context, req llm.ChatRequest, onChunk func(llm.Chunk) error) error {
	if err := p.limiter.wait(ctx, req); err != nil {
		return err
	}
	err := p.next.StreamChat(ctx, req, onChunk)
	p.limiter.observe(err)
	return err
}

func (l *RateLimiter) wait(ctx context.Context, req llm.ChatRequest) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *RateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if isRateLimited(err) {
		l.backoff()
	}
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func (l *RateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *RateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// estimateTokens approximates a ChatRequest's token cost at roughly three
// characters per token plus a fixed overhead for provider framing and tool
// schemas, the same ratio the teacher's estimateTokens uses.
func estimateTokens(req llm.ChatRequest) int {
	charCount := 0
	for _, m := range req.Messages {
		charCount += len(m.Content)
	}
	for _, t := range req.Tools {
		charCount += len(t.Description) + len(t.Schema)
	}
	if charCount <= 0 {
		return 500
	}
	return charCount/3 + 500
}
