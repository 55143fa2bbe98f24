package router

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/events"
	"github.com/louisbranch/autonexus/internal/services/nexus/storage"
)

func (r *Router) handleControl(ctx context.Context, msg ControlMessage) {
	switch msg.Action {
	case ActionPluginMessage:
		r.handlePluginMessage(ctx, msg)
	case ActionTeleport:
		r.handleTeleport(ctx, msg)
	case ActionReloadNetwork:
		if r.reloader == nil {
			return
		}
		if err := r.reloader.Reload(ctx); err != nil {
			r.logger.Error("reload network settings", zap.Error(err))
		}
	case ActionBroadcast:
		r.handleBroadcast(ctx, msg)
	default:
		r.drop(ctx, "unknown_action", nil, zap.String("action", msg.Action))
	}
}

func (r *Router) handlePluginMessage(ctx context.Context, msg ControlMessage) {
	subchannel := strings.TrimSpace(msg.Subchannel)
	if subchannel == "" {
		r.drop(ctx, "missing_subchannel", nil)
		return
	}
	r.mu.RLock()
	list := r.listeners[subchannel]
	r.mu.RUnlock()
	for _, l := range list {
		l.fn(ctx, subchannel, msg.Payload)
	}
}

func (r *Router) handleTeleport(ctx context.Context, msg ControlMessage) {
	id, err := uuid.Parse(strings.TrimSpace(msg.UUID))
	if err != nil {
		r.drop(ctx, "invalid_uuid", err, zap.String("uuid", msg.UUID))
		return
	}
	server := strings.TrimSpace(msg.Server)
	if server == "" {
		r.drop(ctx, "missing_server", nil)
		return
	}
	if r.relocator == nil {
		return
	}
	destination, ok := resolveDestination(r.relocator.Destinations(), server)
	if !ok {
		r.logger.Warn("teleport destination not registered",
			zap.Stringer("uuid", id), zap.String("server", server))
		return
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		if err := r.relocator.Connect(context.WithoutCancel(ctx), id, destination); err != nil {
			r.logger.Warn("teleport player",
				zap.Stringer("uuid", id), zap.String("server", destination), zap.Error(err))
		}
	}()
}

// resolveDestination prefers an exact name and falls back to a
// case-insensitive scan.
func resolveDestination(destinations []string, name string) (string, bool) {
	for _, candidate := range destinations {
		if candidate == name {
			return candidate, true
		}
	}
	for _, candidate := range destinations {
		if strings.EqualFold(candidate, name) {
			return candidate, true
		}
	}
	return "", false
}

func (r *Router) handleBroadcast(ctx context.Context, msg ControlMessage) {
	// The origin announces locally when it publishes.
	if sender := strings.TrimSpace(msg.SenderID); sender != "" && strings.EqualFold(sender, r.Identity().Name) {
		return
	}
	if strings.TrimSpace(msg.Message) == "" || r.announcer == nil {
		return
	}
	r.announcer.Announce(ctx, msg.Message)
}

func (r *Router) handlePacket(ctx context.Context, envelope Envelope) {
	packet := envelope.Packet
	switch packet.Type {
	case PacketDispatchCommand:
		r.handleDispatch(ctx, envelope)
	case PacketMetadataSync, PacketSyncPlayer:
		r.handleSync(ctx, *packet)
	case PacketPing:
		r.logger.Debug("ping", zap.String("payload", packet.Payload), zap.String("target", describe(envelope)))
	default:
		r.drop(ctx, "unknown_packet", nil, zap.String("type", packet.Type))
	}
}

func (r *Router) handleDispatch(ctx context.Context, envelope Envelope) {
	packet := envelope.Packet
	command := strings.TrimSpace(packet.Payload)
	if command == "" {
		r.drop(ctx, "empty_command", nil)
		return
	}
	if r.executor == nil {
		return
	}
	record := storage.DispatchRecord{
		Target:  describe(envelope),
		Command: command,
		Sender:  strings.TrimSpace(packet.SenderUUID),
		Mode:    storage.ModeConsole,
	}

	var err error
	if record.Sender != "" {
		record.Mode = storage.ModePlayer
		id, parseErr := uuid.Parse(record.Sender)
		if parseErr != nil {
			r.drop(ctx, "invalid_sender", parseErr, zap.String("sender", record.Sender))
			return
		}
		// A player is connected to exactly one process, so only that one runs it.
		if !r.executor.IsLocal(id) {
			record.Outcome = storage.OutcomeSkipped
			r.record(ctx, record)
			return
		}
		r.logger.Info("execute remote command for player", zap.Stringer("uuid", id), zap.String("command", command))
		err = r.executor.ExecuteAs(ctx, id, command)
	} else {
		r.logger.Info("execute remote command as console", zap.String("command", command), zap.String("target", record.Target))
		err = r.executor.ExecuteConsole(ctx, command)
	}

	record.Outcome = storage.OutcomeExecuted
	if err != nil {
		record.Outcome = storage.OutcomeFailed
		record.Error = err.Error()
		r.logger.Warn("execute remote command", zap.String("command", command), zap.Error(err))
	}
	r.record(ctx, record)
}

func (r *Router) record(ctx context.Context, record storage.DispatchRecord) {
	if r.journal == nil {
		return
	}
	if err := r.journal.RecordDispatch(ctx, record); err != nil {
		r.logger.Warn("journal dispatch", zap.Error(err))
	}
}

func (r *Router) handleSync(ctx context.Context, packet Packet) {
	event, err := parseSyncPayload(packet.Payload)
	if err != nil {
		r.drop(ctx, "invalid_sync", err, zap.String("type", packet.Type))
		return
	}
	if r.invalidator != nil {
		r.invalidator.Invalidate(event.UUID)
	}
	r.events.Sync.Post(ctx, event)
}

// parseSyncPayload accepts a bare UUID, a JSON object with a uuid field, or
// "uuid:field:value".
func parseSyncPayload(payload string) (events.PlayerSynced, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") {
		var body struct {
			UUID string `json:"uuid"`
		}
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			return events.PlayerSynced{}, malformed("decode sync payload", err)
		}
		payload = strings.TrimSpace(body.UUID)
	}
	var event events.PlayerSynced
	if raw, rest, ok := strings.Cut(payload, ":"); ok {
		payload = raw
		event.Field, event.Value, _ = strings.Cut(rest, ":")
	}
	id, err := uuid.Parse(payload)
	if err != nil {
		return events.PlayerSynced{}, malformed("parse sync uuid", err)
	}
	event.UUID = id
	return event, nil
}

// SyncPayload renders the "uuid:field:value" form of a metadata sync.
func SyncPayload(id uuid.UUID, field, value string) string {
	return id.String() + ":" + field + ":" + value
}

func (r *Router) handleUpdate(ctx context.Context, raw []byte) {
	var update domain.BalanceUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		r.drop(ctx, "malformed", malformed("decode balance update", err), zap.ByteString("raw", truncate(raw)))
		return
	}
	id, err := uuid.Parse(strings.TrimSpace(update.PlayerUUID))
	if err != nil {
		r.drop(ctx, "invalid_uuid", err, zap.String("uuid", update.PlayerUUID))
		return
	}
	if r.invalidator != nil {
		r.invalidator.Invalidate(id)
	}
	r.events.Balance.Post(ctx, events.BalanceChanged{Update: update, UUID: id})
}
