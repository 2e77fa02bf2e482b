// Package handoffdetect implements the Handoff Detector (spec.md §4.7, C7):
// after an Agent Node terminates without suspending, it inspects only the
// messages that node just appended and decides whether control transfers to
// another agent.
package handoffdetect

import (
	"regexp"

	"github.com/hhyun1051/teamh-orchestrator/message"
)

// sentinel matches the wire marker spec.md §6.4 defines: the literal token
// "HANDOFF_TO_" immediately followed by a single uppercase letter agent
// identifier, anywhere in a Tool message's content.
var sentinel = regexp.MustCompile(`HANDOFF_TO_([A-Z])`)

// Detect scans newly, appended messages newest-to-oldest for the first Tool
// message carrying a handoff sentinel and returns the lowercased target agent
// identifier. It returns ("", false) if no handoff is present, which means
// the next node is END (spec.md §4.7).
//
// Detect must be called with exactly the messages an Agent Node appended in
// its most recent run — never the full log — so historical handoffs from
// earlier turns are never re-detected (spec.md §8 law 6).
func Detect(newMessages []message.Message) (target string, found bool) {
	for i := len(newMessages) - 1; i >= 0; i-- {
		m := newMessages[i]
		if m.Role != message.RoleTool {
			continue
		}
		match := sentinel.FindStringSubmatch(m.Content)
		if match == nil {
			continue
		}
		return lower(match[1]), true
	}
	return "", false
}

func lower(letter string) string {
	if len(letter) != 1 {
		return letter
	}
	c := letter[0]
	if c >= 'A' && c <= 'Z' {
		c = c - 'A' + 'a'
	}
	return string(c)
}
