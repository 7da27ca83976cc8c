package gossip

import (
	"encoding/json"
	"fmt"
)

// envelope is the minimal shape read in the first decode pass.
type envelope struct {
	Type Kind `json:"type"`
}

// Decode parses a raw gossip payload into its typed message. Unknown kinds
// and undecodable payloads return an error; the dispatcher logs and drops
// them without affecting other traffic.
func Decode(payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	var msg Message
	switch env.Type {
	case KindTaskBroadcast:
		msg = &TaskBroadcast{}
	case KindTaskClaim:
		msg = &TaskClaim{}
	case KindTaskComplete:
		msg = &TaskComplete{}
	case KindSyncRequest:
		msg = &SyncRequest{}
	case KindSyncResponse:
		msg = &SyncResponse{}
	case KindContactRequest:
		msg = &ContactRequest{}
	case KindContactResponse:
		msg = &ContactResponse{}
	case KindChatMessage:
		msg = &ChatEvent{}
	case KindHeartbeat:
		msg = &Heartbeat{}
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", env.Type, err)
	}
	return msg, nil
}

// Encode serializes a message with its type tag.
func Encode(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage)
	}
	tag, _ := json.Marshal(m.Kind())
	obj["type"] = tag
	return json.Marshal(obj)
}
