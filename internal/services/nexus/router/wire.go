package router

import (
	"bytes"
	"encoding/json"
	"strings"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
)

// Control actions carried without an envelope.
const (
	ActionPluginMessage = "PLUGIN_MESSAGE"
	ActionTeleport      = "TELEPORT"
	ActionReloadNetwork = "RELOAD_NETWORK"
	ActionBroadcast     = "BROADCAST"
)

// Packet types carried inside envelopes.
const (
	PacketDispatchCommand = "DISPATCH_COMMAND"
	PacketMetadataSync    = "METADATA_SYNC"
	PacketSyncPlayer      = "SYNC_PLAYER"
	PacketPing            = "PING"
)

// Envelope targets with special meaning.
const (
	TargetAll   = "ALL"
	TargetGroup = "GROUP"
)

// ControlMessage is a network action. Only the fields of its action are set.
type ControlMessage struct {
	Action     string `json:"action"`
	Subchannel string `json:"subchannel,omitempty"`
	Payload    string `json:"payload,omitempty"`
	UUID       string `json:"uuid,omitempty"`
	Server     string `json:"server,omitempty"`
	Message    string `json:"message,omitempty"`
	SenderID   string `json:"senderId,omitempty"`
}

// Packet is the application payload of an envelope.
type Packet struct {
	Type        string `json:"type"`
	Payload     string `json:"payload"`
	TargetGroup string `json:"targetGroup,omitempty"`
	SenderUUID  string `json:"senderUuid,omitempty"`
}

// Envelope addresses a packet to one process, a group or everyone.
type Envelope struct {
	Target string  `json:"target"`
	Packet *Packet `json:"packet"`
}

// Message is one decoded channel payload. Exactly one field is set.
type Message struct {
	Control  *ControlMessage
	Envelope *Envelope
}

// Decode parses a network channel payload. The presence of an action field
// selects the control shape; anything else must be an envelope.
func Decode(raw []byte) (Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Message{}, malformed("empty message", nil)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Message{}, malformed("decode message", err)
	}

	if _, ok := probe["action"]; ok {
		var control ControlMessage
		if err := json.Unmarshal(raw, &control); err != nil {
			return Message{}, malformed("decode control message", err)
		}
		control.Action = strings.ToUpper(strings.TrimSpace(control.Action))
		if control.Action == "" {
			return Message{}, malformed("control message has no action", nil)
		}
		return Message{Control: &control}, nil
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Message{}, malformed("decode envelope", err)
	}
	if envelope.Packet == nil {
		return Message{}, malformed("envelope has no packet", nil)
	}
	envelope.Packet.Type = strings.TrimSpace(envelope.Packet.Type)
	if envelope.Packet.Type == "" {
		return Message{}, malformed("packet has no type", nil)
	}
	return Message{Envelope: &envelope}, nil
}

func malformed(message string, cause error) error {
	if cause == nil {
		return nexuserrors.New(nexuserrors.CodeMalformedMessage, message)
	}
	return nexuserrors.Wrap(nexuserrors.CodeMalformedMessage, message, cause)
}
