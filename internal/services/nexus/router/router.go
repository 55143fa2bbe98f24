// Package router carries control actions and addressed envelopes between
// processes over the shared network channel, and turns balance notifications
// from the updates channel into cache invalidations and local events.
package router

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/platform/logging"
	"github.com/louisbranch/autonexus/internal/services/nexus/events"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
	"github.com/louisbranch/autonexus/internal/services/nexus/storage"
)

const instrumentationName = "github.com/louisbranch/autonexus/internal/services/nexus/router"

// CommandExecutor runs dispatched commands on the host.
type CommandExecutor interface {
	// IsLocal reports whether the player is connected to this process.
	IsLocal(id uuid.UUID) bool
	ExecuteAs(ctx context.Context, id uuid.UUID, command string) error
	ExecuteConsole(ctx context.Context, command string) error
}

// Relocator moves players between processes.
type Relocator interface {
	// Destinations lists the process names the host can connect players to.
	Destinations() []string
	Connect(ctx context.Context, id uuid.UUID, destination string) error
}

// Announcer shows a message to every local player.
type Announcer interface {
	Announce(ctx context.Context, message string)
}

// Reloader reloads host configuration.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Invalidator drops cached player records.
type Invalidator interface {
	Invalidate(id uuid.UUID)
}

// DispatchRecorder journals command dispatches.
type DispatchRecorder interface {
	RecordDispatch(ctx context.Context, record storage.DispatchRecord) error
}

// Listener receives plugin messages for one subchannel.
type Listener func(ctx context.Context, subchannel, payload string)

// Config wires a Router to its host. Nil collaborators disable the
// actions that need them.
type Config struct {
	Identity    Identity
	Executor    CommandExecutor
	Relocator   Relocator
	Announcer   Announcer
	Reloader    Reloader
	Invalidator Invalidator
	Journal     DispatchRecorder
	Events      *events.Buses
	Logger      *zap.Logger
}

type listener struct {
	id uint64
	fn Listener
}

// Router is safe for concurrent use.
type Router struct {
	client      redis.UniversalClient
	executor    CommandExecutor
	relocator   Relocator
	announcer   Announcer
	reloader    Reloader
	invalidator Invalidator
	journal     DispatchRecorder
	events      *events.Buses
	logger      *zap.Logger
	dropped     metric.Int64Counter

	mu        sync.RWMutex
	identity  Identity
	nextID    uint64
	listeners map[string][]listener

	inflight sync.WaitGroup
}

// New builds a router publishing and subscribing through client.
func New(client redis.UniversalClient, cfg Config) *Router {
	logger := logging.OrNop(cfg.Logger).Named("router")
	dropped, err := otel.Meter(instrumentationName).Int64Counter("autonexus.router.dropped",
		metric.WithDescription("Channel messages dropped by reason"))
	if err != nil {
		logger.Warn("create router counter", zap.Error(err))
		dropped = noop.Int64Counter{}
	}
	bus := cfg.Events
	if bus == nil {
		bus = &events.Buses{}
	}
	return &Router{
		client:      client,
		executor:    cfg.Executor,
		relocator:   cfg.Relocator,
		announcer:   cfg.Announcer,
		reloader:    cfg.Reloader,
		invalidator: cfg.Invalidator,
		journal:     cfg.Journal,
		events:      bus,
		logger:      logger,
		dropped:     dropped,
		identity: Identity{
			Name:  strings.TrimSpace(cfg.Identity.Name),
			Group: strings.TrimSpace(cfg.Identity.Group),
		},
		listeners: make(map[string][]listener),
	}
}

// Identity returns how this process is currently addressed.
func (r *Router) Identity() Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

// SetGroup changes the group this process accepts envelopes for.
func (r *Router) SetGroup(group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identity.Group = strings.TrimSpace(group)
}

// Events returns the buses the router posts to.
func (r *Router) Events() *events.Buses {
	return r.events
}

// RegisterListener adds fn for subchannel. Listeners run in registration
// order on the router goroutine. The returned func removes fn.
func (r *Router) RegisterListener(subchannel string, fn Listener) (unregister func()) {
	subchannel = strings.TrimSpace(subchannel)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.listeners[subchannel] = append(r.listeners[subchannel], listener{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.listeners[subchannel]
		for i, l := range list {
			if l.id == id {
				list = slices.Delete(slices.Clone(list), i, i+1)
				break
			}
		}
		if len(list) == 0 {
			delete(r.listeners, subchannel)
			return
		}
		r.listeners[subchannel] = list
	}
}

// Run subscribes to the network and updates channels and handles messages
// until ctx is done. The client resubscribes on its own after a dropped
// connection.
func (r *Router) Run(ctx context.Context) error {
	return r.RunNotify(ctx, nil)
}

// RunNotify is Run, calling subscribed once both channels are subscribed.
func (r *Router) RunNotify(ctx context.Context, subscribed func()) error {
	sub := r.client.Subscribe(ctx, keys.NetworkChannel, keys.UpdatesChannel)
	defer func() {
		if err := sub.Close(); err != nil {
			r.logger.Debug("close subscription", zap.Error(err))
		}
		r.inflight.Wait()
	}()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return nexuserrors.Wrap(nexuserrors.CodeUnavailable, "subscribe to network channels", err)
	}
	r.logger.Info("router subscribed",
		zap.Strings("channels", []string{keys.NetworkChannel, keys.UpdatesChannel}),
		zap.String("name", r.Identity().Name),
		zap.String("group", r.Identity().Group),
	)
	if subscribed != nil {
		subscribed()
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.Handle(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

// Handle processes one raw message received on channel. It never panics on
// bad input: undecodable messages are logged, counted and dropped.
func (r *Router) Handle(ctx context.Context, channel string, raw []byte) {
	if channel == keys.UpdatesChannel {
		r.handleUpdate(ctx, raw)
		return
	}
	msg, err := Decode(raw)
	if err != nil {
		r.drop(ctx, "malformed", err, zap.ByteString("raw", truncate(raw)))
		return
	}
	if msg.Control != nil {
		r.handleControl(ctx, *msg.Control)
		return
	}
	envelope := *msg.Envelope
	identity := r.Identity()
	if !identity.Accepts(envelope) {
		if envelope.Packet.TargetGroup != "" {
			r.logger.Debug("ignore envelope for another group",
				zap.String("target_group", envelope.Packet.TargetGroup),
				zap.String("group", identity.Group))
		}
		return
	}
	r.handlePacket(ctx, envelope)
}

func (r *Router) drop(ctx context.Context, reason string, err error, fields ...zap.Field) {
	r.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	fields = append(fields, zap.String("reason", reason))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.logger.Warn("drop channel message", fields...)
}

func truncate(raw []byte) []byte {
	const limit = 256
	if len(raw) > limit {
		return raw[:limit]
	}
	return raw
}
