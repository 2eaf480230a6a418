package session

import (
	"bytes"
	"encoding/json"
	"fmt"

	"chatclient/client/model"
)

type eventKind int

const (
	// kindSnapshot is a batch payload: the room's message history sent
	// as a single array frame, newest-first.
	kindSnapshot eventKind = iota
	// kindJoin is a membership notification adding a participant.
	kindJoin
	// kindLeave is a membership notification removing a participant.
	kindLeave
	// kindChat is an ordinary chat message.
	kindChat
)

func (k eventKind) String() string {
	switch k {
	case kindSnapshot:
		return "snapshot"
	case kindJoin:
		return "join"
	case kindLeave:
		return "leave"
	case kindChat:
		return "chat"
	default:
		return "unknown"
	}
}

// inboundEvent is a decoded, classified transport frame. Exactly one
// of batch/message is meaningful, selected by kind.
type inboundEvent struct {
	kind    eventKind
	batch   []model.Message
	message model.Message
}

// classify decodes a raw frame into a tagged event before any state is
// touched. Array-shaped payloads are history snapshots; single objects
// are split on the literal membership markers.
func classify(raw []byte) (inboundEvent, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return inboundEvent{}, fmt.Errorf("session: empty frame")
	}

	if trimmed[0] == '[' {
		var batch []model.Message
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return inboundEvent{}, fmt.Errorf("session: failed to decode batch payload: %w", err)
		}
		return inboundEvent{kind: kindSnapshot, batch: batch}, nil
	}

	var message model.Message
	if err := json.Unmarshal(trimmed, &message); err != nil {
		return inboundEvent{}, fmt.Errorf("session: failed to decode message payload: %w", err)
	}

	switch message.Content {
	case model.ContentJoined:
		return inboundEvent{kind: kindJoin, message: message}, nil
	case model.ContentLeft:
		return inboundEvent{kind: kindLeave, message: message}, nil
	default:
		return inboundEvent{kind: kindChat, message: message}, nil
	}
}
