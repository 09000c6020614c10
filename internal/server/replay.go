package server

import (
	"maestro/internal/events"
	"maestro/internal/ports"
	"maestro/internal/session"
	"maestro/internal/shared/jsonx"
	"maestro/internal/store"
)

// replayHistory streams a task's persisted messages back to the client,
// bracketed by history_start/history_end, and reloads user/assistant pairs
// into the memory window. Each kind maps to the stream shape that originally
// produced it; unknown and monitor-only kinds go to the monitor stream.
func replayHistory(sender events.StreamSender, sess *session.Session, records []store.MessageRecord) {
	_ = sender.Send(events.TypeHistoryStart, events.StatusMessage{Text: "Restoring task history…"})

	pendingUser := ""
	for _, rec := range records {
		switch rec.Kind {
		case ports.KindUserInput:
			_ = sender.Send("user_message", map[string]string{"content": rec.Payload})
			pendingUser = rec.Payload

		case ports.KindAgentMessage:
			_ = sender.Send(events.TypeAgentMessage, events.AgentMessage{Content: rec.Payload})
			if pendingUser != "" {
				sess.Memory.AddTurn(pendingUser, rec.Payload)
				pendingUser = ""
			}

		case ports.KindSubStatus, ports.KindThought:
			var update events.ThinkingUpdate
			if err := jsonx.Unmarshal([]byte(rec.Payload), &update); err == nil {
				_ = sender.Send(events.TypeThinkingUpdate, update)
			}

		case ports.KindToolResultForChat:
			var card map[string]string
			if err := jsonx.Unmarshal([]byte(rec.Payload), &card); err == nil {
				_ = sender.Send(events.TypeToolResultForChat, card)
			}

		case ports.KindConfirmedPlanLog:
			_ = sender.Send(events.TypeConfirmedPlanLog, map[string]string{"content": rec.Payload})

		case ports.KindMajorStepAnnouncement:
			_ = sender.Send(events.TypeMajorStepAnnouncement, events.StatusMessage{Text: rec.Payload})

		case ports.KindStatusMessage:
			var status events.StatusMessage
			if err := jsonx.Unmarshal([]byte(rec.Payload), &status); err == nil {
				_ = sender.Send(events.TypeStatusMessage, status)
			}

		default:
			// monitor and error kinds replay to the side channel only
			_ = sender.Send(events.TypeMonitorLog, events.MonitorLog{
				Text:      rec.Kind + ": " + rec.Payload,
				LogSource: "history",
			})
		}
	}

	_ = sender.Send(events.TypeHistoryEnd, events.StatusMessage{Text: "History restored."})
}
