package message

// Log is an ordered, append-only sequence of Messages. The zero value is an
// empty log ready to use.
//
// Contract (spec.md §3): entries never mutate once appended, the log never
// reorders or deduplicates entries, and every entry's Index is monotonic and
// implicit (assigned on Append).
type Log struct {
	entries []Message
}

// NewLog constructs a Log seeded with the given messages. Index fields are
// (re)assigned in order, overwriting whatever the caller supplied, so callers
// never need to manage indices themselves.
func NewLog(seed ...Message) Log {
	l := Log{}
	l.Append(seed...)
	return l
}

// Len returns the number of messages currently in the log.
func (l Log) Len() int { return len(l.entries) }

// All returns every message in the log, oldest first. The returned slice is a
// defensive copy; mutating it does not affect the log.
func (l Log) All() []Message {
	out := make([]Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Since returns every message appended after the given count, preserving
// order. This is the count-diffing mechanism the Handoff Detector (C7) and
// Agent Node (C5) use to isolate newly produced messages without needing
// explicit per-node message identity (spec.md §9, "Message identity").
func (l Log) Since(count int) []Message {
	if count < 0 {
		count = 0
	}
	if count >= len(l.entries) {
		return nil
	}
	out := make([]Message, len(l.entries)-count)
	copy(out, l.entries[count:])
	return out
}

// Append adds messages to the end of the log, assigning each a monotonic
// Index. Append never reorders or removes existing entries.
func (l *Log) Append(msgs ...Message) {
	for _, m := range msgs {
		m.Index = len(l.entries)
		l.entries = append(l.entries, m)
	}
}

// Last returns the most recently appended message and true, or the zero
// Message and false if the log is empty.
func (l Log) Last() (Message, bool) {
	if len(l.entries) == 0 {
		return Message{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// LastUser returns the most recently appended User message, scanning from the
// end, or false if none exists.
func (l Log) LastUser() (Message, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Role == RoleUser {
			return l.entries[i], true
		}
	}
	return Message{}, false
}

// ToolCallIDs returns the set of tool-call IDs referenced by the assistant
// message at the given index, used to validate that every later Tool message
// answers a call that was actually requested (spec.md §3 invariant).
func (l Log) ToolCallIDs(assistantIndex int) map[string]struct{} {
	ids := make(map[string]struct{})
	if assistantIndex < 0 || assistantIndex >= len(l.entries) {
		return ids
	}
	for _, tc := range l.entries[assistantIndex].ToolCalls {
		ids[tc.ID] = struct{}{}
	}
	return ids
}
