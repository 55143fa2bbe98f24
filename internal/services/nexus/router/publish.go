package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
)

// SendEnvelope publishes an addressed packet.
func (r *Router) SendEnvelope(ctx context.Context, envelope Envelope) error {
	envelope.Target = strings.TrimSpace(envelope.Target)
	if envelope.Target == "" {
		return invalid("target is required")
	}
	if envelope.Packet == nil || strings.TrimSpace(envelope.Packet.Type) == "" {
		return invalid("packet type is required")
	}
	return r.publish(ctx, envelope)
}

// PublishPlugin sends payload to every process's listeners for subchannel.
func (r *Router) PublishPlugin(ctx context.Context, subchannel, payload string) error {
	subchannel = strings.TrimSpace(subchannel)
	if subchannel == "" {
		return invalid("subchannel is required")
	}
	return r.publish(ctx, ControlMessage{Action: ActionPluginMessage, Subchannel: subchannel, Payload: payload})
}

// Broadcast shows message to every player on the network. Other processes
// receive it from the channel; this one announces it directly.
func (r *Router) Broadcast(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return invalid("message is required")
	}
	if err := r.publish(ctx, ControlMessage{
		Action:   ActionBroadcast,
		Message:  message,
		SenderID: r.Identity().Name,
	}); err != nil {
		return err
	}
	if r.announcer != nil {
		r.announcer.Announce(ctx, message)
	}
	return nil
}

// Teleport asks the process owning relocation to move a player.
func (r *Router) Teleport(ctx context.Context, id uuid.UUID, server string) error {
	if id == uuid.Nil {
		return invalid("uuid is required")
	}
	server = strings.TrimSpace(server)
	if server == "" {
		return invalid("server is required")
	}
	return r.publish(ctx, ControlMessage{Action: ActionTeleport, UUID: id.String(), Server: server})
}

// Reload asks every process to reload its configuration.
func (r *Router) Reload(ctx context.Context) error {
	return r.publish(ctx, ControlMessage{Action: ActionReloadNetwork})
}

func (r *Router) publish(ctx context.Context, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode channel message: %w", err)
	}
	if err := r.client.Publish(ctx, keys.NetworkChannel, payload).Err(); err != nil {
		return nexuserrors.Wrap(nexuserrors.CodeUnavailable, "publish to network channel", err)
	}
	return nil
}

func invalid(message string) error {
	return nexuserrors.New(nexuserrors.CodeInvalidArgument, message)
}
