package state_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hhyun1051/teamh-orchestrator/message"
	"github.com/hhyun1051/teamh-orchestrator/state"
)

// TestMonotonicLog verifies spec.md §8 law 1: for every pair of successive
// states, the message log before an update is a prefix of the log after.
func TestMonotonicLog(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("merge never shrinks or reorders the existing log", prop.ForAll(
		func(existingContents []string, newContents []string) bool {
			var existing state.Conversation
			for _, c := range existingContents {
				existing.Messages.Append(message.NewUser(c))
			}
			before := existing.Messages.All()

			var newMsgs []message.Message
			for _, c := range newContents {
				newMsgs = append(newMsgs, message.NewAssistant(c))
			}
			next := state.Merge(existing, state.Update{NewMessages: newMsgs})
			after := next.Messages.All()

			if len(after) < len(before) {
				return false
			}
			for i := range before {
				if before[i].Content != after[i].Content || before[i].Role != after[i].Role {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestReducerPurity verifies spec.md §8 law 2: merge depends only on its
// arguments (same inputs produce the same output every time), and
// merge(merge(S,P1),P2) == merge(S, MergePartials(P1,P2)).
func TestReducerPurity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("merge is deterministic", prop.ForAll(
		func(agent string, reason string, delta int) bool {
			existing := state.Conversation{CurrentAgent: "x"}
			u := state.Update{CurrentAgent: agent, RoutingReason: reason, HandoffCountDelta: delta}

			r1 := state.Merge(existing, u)
			r2 := state.Merge(existing, u)
			return r1.CurrentAgent == r2.CurrentAgent &&
				r1.RoutingReason == r2.RoutingReason &&
				r1.HandoffCount == r2.HandoffCount
		},
		gen.AlphaString(), gen.AlphaString(), gen.IntRange(0, 5),
	))

	properties.Property("sequential merges equal one merge of the combined partial", prop.ForAll(
		func(agent1, agent2, reason1, reason2 string, d1, d2 int) bool {
			existing := state.Conversation{CurrentAgent: "seed", HandoffCount: 1}
			u1 := state.Update{CurrentAgent: agent1, RoutingReason: reason1, HandoffCountDelta: d1,
				NewMessages: []message.Message{message.NewUser("a")}}
			u2 := state.Update{CurrentAgent: agent2, RoutingReason: reason2, HandoffCountDelta: d2,
				NewMessages: []message.Message{message.NewUser("b")}}

			sequential := state.Merge(state.Merge(existing, u1), u2)
			combined := state.Merge(existing, state.MergePartials(u1, u2))

			return sequential.CurrentAgent == combined.CurrentAgent &&
				sequential.RoutingReason == combined.RoutingReason &&
				sequential.HandoffCount == combined.HandoffCount &&
				sequential.Messages.Len() == combined.Messages.Len()
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
		gen.IntRange(0, 3), gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
