package wire

import (
	"encoding/json"
	"fmt"
)

// Encode serializes an outbound message, stamping the type tag from the
// message's own MessageType so a builder can never send a mistagged frame.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode nil message")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", m.MessageType(), err)
	}
	return data, nil
}

// Decode parses an inbound frame into its typed variant. Unknown types and
// malformed payloads are rejected here, at the single validation boundary,
// so downstream consumers never see an untyped blob.
func Decode(data []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse message envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("message envelope missing type")
	}

	var (
		msg Message
		err error
	)
	switch env.Type {
	case TypeSessionStatus:
		msg, err = decodeInto[SessionStatus](data)
	case TypeCorruptionUpdate:
		msg, err = decodeInto[CorruptionUpdate](data)
	case TypeOSStateUpdate:
		msg, err = decodeInto[OSStateUpdate](data)
	case TypeTomMessageGenerated:
		msg, err = decodeInto[TomMessageGenerated](data)
	case TypeTomStatus:
		msg, err = decodeInto[TomStatus](data)
	case TypeSessionReady:
		msg, err = decodeInto[SessionReady](data)
	case TypeActionProcessed:
		msg, err = decodeInto[ActionProcessed](data)
	case TypePong:
		msg, err = decodeInto[Pong](data)
	case TypeError:
		msg, err = decodeInto[BackendError](data)
	case TypeSessionInit:
		msg, err = decodeInto[SessionInit](data)
	case TypePlayerAction:
		msg, err = decodeInto[PlayerAction](data)
	case TypePlayerHesitation:
		msg, err = decodeInto[PlayerHesitation](data)
	case TypePhaseTransition:
		msg, err = decodeInto[PhaseTransition](data)
	case TypeSessionEnd:
		msg, err = decodeInto[SessionEnd](data)
	case TypeFileAction:
		msg, err = decodeInto[FileAction](data)
	case TypeGenerateTomMessage:
		msg, err = decodeInto[GenerateTomMessage](data)
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s message: %w", env.Type, err)
	}
	return msg, nil
}

func decodeInto[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
