package compaction

import "strings"

// AssembleCycles pairs each user turn with the assistant reply that follows
// it. A user turn that is followed by another user turn before any reply is
// discarded, and so is a reply with no open user turn. Messages with an
// unknown role or blank text are skipped. dropped counts discarded user turns.
func AssembleCycles(messages []Message) (cycles []Cycle, dropped int) {
	var pending *Message
	for i := range messages {
		msg := messages[i]
		if !msg.Role.Valid() || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		switch msg.Role {
		case RoleUser:
			if pending != nil {
				dropped++
			}
			pending = &msg
		case RoleAssistant:
			if pending == nil {
				continue
			}
			cycles = append(cycles, Cycle{
				Index:         len(cycles) + 1,
				UserText:      pending.Text,
				AssistantText: msg.Text,
				Timestamp:     pending.Timestamp,
			})
			pending = nil
		}
	}
	// A trailing user turn is still awaiting its reply and is not counted.
	return cycles, dropped
}
