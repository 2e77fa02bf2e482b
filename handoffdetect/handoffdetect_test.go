package handoffdetect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hhyun1051/teamh-orchestrator/handoffdetect"
	"github.com/hhyun1051/teamh-orchestrator/message"
)

func TestDetectFindsHandoffInNewestToolMessage(t *testing.T) {
	msgs := []message.Message{
		message.NewTool("c1", "handoff_to_m", "transferring, HANDOFF_TO_M"),
	}
	target, found := handoffdetect.Detect(msgs)
	assert.True(t, found)
	assert.Equal(t, "m", target)
}

func TestDetectReturnsFalseWithoutSentinel(t *testing.T) {
	msgs := []message.Message{
		message.NewTool("c1", "lookup", "the result is 42"),
		message.NewAssistant("here you go"),
	}
	_, found := handoffdetect.Detect(msgs)
	assert.False(t, found)
}

func TestDetectScansNewestFirst(t *testing.T) {
	msgs := []message.Message{
		message.NewTool("c1", "handoff_to_i", "HANDOFF_TO_I"),
		message.NewTool("c2", "handoff_to_s", "HANDOFF_TO_S"),
	}
	target, found := handoffdetect.Detect(msgs)
	assert.True(t, found)
	assert.Equal(t, "s", target)
}

func TestDetectIgnoresSentinelInNonToolMessage(t *testing.T) {
	msgs := []message.Message{
		message.NewAssistant("I will call HANDOFF_TO_M now"),
	}
	_, found := handoffdetect.Detect(msgs)
	assert.False(t, found)
}

func TestDetectOnlyScansProvidedMessages(t *testing.T) {
	// Simulates the critical invariant: a historical handoff from an earlier
	// turn, already present in the full log, must never be passed to Detect
	// again — callers are responsible for slicing to Log.Since(count).
	newOnly := []message.Message{message.NewAssistant("no handoff this turn")}
	_, found := handoffdetect.Detect(newOnly)
	assert.False(t, found)
}
