package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hhyun1051/teamh-orchestrator/policy"
)

func TestDefaultPolicyAllowsInterruptsAndIsUnlimited(t *testing.T) {
	p := policy.DefaultPolicy()
	assert.True(t, p.InterruptsAllowed)
	assert.Zero(t, p.MaxToolCalls)
}

func TestCapsTracksToolCallCap(t *testing.T) {
	caps := policy.NewCaps(policy.RunPolicy{MaxToolCalls: 2})
	assert.Equal(t, 2, caps.RemainingToolCalls())
	assert.False(t, caps.ExceededToolCap())

	caps = caps.RecordToolCall(false)
	assert.Equal(t, 1, caps.RemainingToolCalls())

	caps = caps.RecordToolCall(false)
	assert.Equal(t, 0, caps.RemainingToolCalls())
	assert.True(t, caps.ExceededToolCap())
}

func TestCapsUnlimitedWhenMaxToolCallsZero(t *testing.T) {
	caps := policy.NewCaps(policy.RunPolicy{})
	assert.Equal(t, -1, caps.RemainingToolCalls())
	assert.False(t, caps.ExceededToolCap())
}

func TestCapsTracksConsecutiveFailures(t *testing.T) {
	caps := policy.NewCaps(policy.RunPolicy{MaxConsecutiveFailedToolCalls: 2})
	caps = caps.RecordToolCall(true)
	assert.False(t, caps.ExceededFailureStreak())
	caps = caps.RecordToolCall(true)
	assert.True(t, caps.ExceededFailureStreak())

	caps = caps.RecordToolCall(false)
	assert.False(t, caps.ExceededFailureStreak())
	assert.Zero(t, caps.ConsecutiveFailures)
}

func TestDeadlineIsZeroWhenNoTimeBudget(t *testing.T) {
	p := policy.RunPolicy{}
	assert.True(t, p.Deadline(time.Now()).IsZero())
}

func TestDeadlineAddsTimeBudget(t *testing.T) {
	p := policy.RunPolicy{TimeBudget: 5 * time.Second}
	start := time.Now()
	assert.Equal(t, start.Add(5*time.Second), p.Deadline(start))
}
