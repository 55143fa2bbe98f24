// Package meta is the group-scoped facade over the transaction engine used
// by callers that read and change player metadata. Every write is retried
// on transport failures; increments and transfers carry an idempotency
// token so a retry after a lost reply is not applied twice.
package meta

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/platform/logging"
	"github.com/louisbranch/autonexus/internal/platform/retry"
	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/events"
	"github.com/louisbranch/autonexus/internal/services/nexus/history"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
	"github.com/louisbranch/autonexus/internal/services/nexus/router"
	"github.com/louisbranch/autonexus/internal/services/nexus/txn"
)

// Publisher sends envelopes to other processes.
type Publisher interface {
	SendEnvelope(ctx context.Context, envelope router.Envelope) error
}

// Config controls a Manager.
type Config struct {
	// Source tags balance notifications; usually the process name.
	Source string
	// Group returns the group used when a call leaves it blank.
	Group func() string
	// Attempts bounds retries; zero means retry.DefaultAttempts.
	Attempts int
	Logger   *zap.Logger
}

// Manager is safe for concurrent use.
type Manager struct {
	engine    *txn.Engine
	history   *history.Log
	publisher Publisher
	events    *events.Buses
	source    string
	group     func() string
	attempts  int
	newToken  func() string
	logger    *zap.Logger
}

// New builds a manager. publisher and bus may be nil.
func New(engine *txn.Engine, log *history.Log, publisher Publisher, bus *events.Buses, cfg Config) *Manager {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = retry.DefaultAttempts
	}
	group := cfg.Group
	if group == nil {
		group = func() string { return domain.DefaultGroup }
	}
	if bus == nil {
		bus = &events.Buses{}
	}
	return &Manager{
		engine:    engine,
		history:   log,
		publisher: publisher,
		events:    bus,
		source:    strings.TrimSpace(cfg.Source),
		group:     group,
		attempts:  attempts,
		newToken:  uuid.NewString,
		logger:    logging.OrNop(cfg.Logger).Named("meta"),
	}
}

// Group returns group, or the configured group when it is blank, folded to
// lower case so field names and leaderboard keys agree.
func (m *Manager) Group(group string) string {
	if group = strings.TrimSpace(group); group == "" {
		group = m.group()
	}
	return keys.Fold(domain.NormalizeGroup(group))
}

// Increment adds delta to field in group. A debit past zero yields
// txn.StatusInsufficientFunds and changes nothing.
func (m *Manager) Increment(ctx context.Context, id uuid.UUID, field string, delta float64, group, reason string) (txn.Result, error) {
	return m.change(ctx, Change{UUID: id, Field: field, Delta: delta, Group: group, Reason: reason})
}

// Change is a fully specified increment.
type Change struct {
	UUID         uuid.UUID
	Field        string
	Delta        float64
	Group        string
	Type         domain.TxType
	Counterparty uuid.UUID
	Reason       string
}

// Apply runs an increment with an explicit ledger type or counterparty.
func (m *Manager) Apply(ctx context.Context, change Change) (txn.Result, error) {
	return m.change(ctx, change)
}

func (m *Manager) change(ctx context.Context, change Change) (txn.Result, error) {
	if change.UUID == uuid.Nil {
		return txn.Result{}, invalid("uuid is required")
	}
	if strings.TrimSpace(change.Field) == "" {
		return txn.Result{}, invalid("field is required")
	}
	group := m.Group(change.Group)
	resolved := domain.ResolveField(change.Field, group)
	txType := change.Type
	if txType == "" {
		txType = domain.TxTypeFor(change.Delta)
	}
	req := txn.IncrementRequest{
		UUID:         change.UUID,
		Field:        resolved,
		Delta:        change.Delta,
		Group:        group,
		Source:       m.source,
		Type:         txType,
		Counterparty: change.Counterparty,
		Reason:       change.Reason,
		Token:        m.newToken(),
	}
	result, err := retry.Do(ctx, m.attempts, func(ctx context.Context) (txn.Result, error) {
		return m.engine.IncrementField(ctx, req)
	})
	if err != nil {
		m.logger.Warn("increment metadata",
			zap.Stringer("uuid", change.UUID), zap.String("field", resolved), zap.Error(err))
		return txn.Result{}, err
	}
	if result.Applied() {
		m.events.Metadata.Post(ctx, events.MetadataChanged{
			UUID:          change.UUID,
			Field:         strings.TrimSpace(change.Field),
			ResolvedField: resolved,
			Group:         group,
			Value:         result.Value,
			Delta:         change.Delta,
			Type:          txType,
		})
	}
	return result, nil
}

// Transfer moves amount of field in group from one player to another. The
// result value is the new source balance.
func (m *Manager) Transfer(ctx context.Context, from, to uuid.UUID, field string, amount float64, group, reason string) (txn.Result, error) {
	if strings.TrimSpace(field) == "" {
		return txn.Result{}, invalid("field is required")
	}
	group = m.Group(group)
	resolved := domain.ResolveField(field, group)
	req := txn.TransferRequest{
		From:   from,
		To:     to,
		Field:  resolved,
		Amount: amount,
		Group:  group,
		Source: m.source,
		Reason: reason,
		Token:  m.newToken(),
	}
	result, err := retry.Do(ctx, m.attempts, func(ctx context.Context) (txn.Result, error) {
		return m.engine.TransferField(ctx, req)
	})
	if err != nil {
		m.logger.Warn("transfer metadata",
			zap.Stringer("from", from), zap.Stringer("to", to), zap.String("field", resolved), zap.Error(err))
		return txn.Result{}, err
	}
	if result.Applied() {
		m.events.Metadata.Post(ctx, events.MetadataChanged{
			UUID: from, Field: field, ResolvedField: resolved, Group: group,
			Value: result.Value, Delta: -amount, Type: domain.TxDebit,
		})
		m.events.Metadata.Post(ctx, events.MetadataChanged{
			UUID: to, Field: field, ResolvedField: resolved, Group: group,
			Delta: amount, Type: domain.TxCredit,
		})
	}
	return result, nil
}

// Set stores value under field in group and asks every process to refresh
// the player.
func (m *Manager) Set(ctx context.Context, id uuid.UUID, field, value, group string) (txn.Result, error) {
	if strings.TrimSpace(field) == "" {
		return txn.Result{}, invalid("field is required")
	}
	group = m.Group(group)
	return m.set(ctx, id, domain.ResolveField(field, group), strings.TrimSpace(field), group, value)
}

// SetRaw stores value under an unscoped field name.
func (m *Manager) SetRaw(ctx context.Context, id uuid.UUID, field, value string) (txn.Result, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return txn.Result{}, invalid("field is required")
	}
	return m.set(ctx, id, field, field, "", value)
}

func (m *Manager) set(ctx context.Context, id uuid.UUID, stored, field, group, value string) (txn.Result, error) {
	if id == uuid.Nil {
		return txn.Result{}, invalid("uuid is required")
	}
	updates := map[string]string{stored: value}
	result, err := retry.Do(ctx, m.attempts, func(ctx context.Context) (txn.Result, error) {
		return m.engine.MergeMetadata(ctx, id, updates)
	})
	if err != nil {
		m.logger.Warn("set metadata", zap.Stringer("uuid", id), zap.String("field", stored), zap.Error(err))
		return txn.Result{}, err
	}
	if !result.Applied() {
		return result, nil
	}
	result.Value = value

	if m.publisher != nil {
		err := m.publisher.SendEnvelope(ctx, router.Envelope{
			Target: router.TargetAll,
			Packet: &router.Packet{
				Type:    router.PacketMetadataSync,
				Payload: router.SyncPayload(id, stored, value),
			},
		})
		if err != nil {
			m.logger.Warn("publish metadata sync", zap.Stringer("uuid", id), zap.Error(err))
		}
	}
	m.events.Metadata.Post(ctx, events.MetadataChanged{
		UUID:          id,
		Field:         field,
		ResolvedField: stored,
		Group:         group,
		Value:         value,
	})
	return result, nil
}

// Get reads field in group. ok is false when the player or the field is
// missing.
func (m *Manager) Get(ctx context.Context, id uuid.UUID, field, group string) (value string, ok bool, err error) {
	if strings.TrimSpace(field) == "" {
		return "", false, invalid("field is required")
	}
	record, found, err := m.engine.Record(ctx, id)
	if err != nil || !found {
		return "", false, err
	}
	value, ok = record.Metadata[domain.ResolveField(field, m.Group(group))]
	return value, ok, nil
}

// Balance reads field in group as a number, zero when missing.
func (m *Manager) Balance(ctx context.Context, id uuid.UUID, field, group string) (float64, error) {
	record, found, err := m.engine.Record(ctx, id)
	if err != nil || !found {
		return 0, err
	}
	return record.Metadata.Number(domain.ResolveField(field, m.Group(group))), nil
}

// History returns a player's most recent ledger entries.
func (m *Manager) History(ctx context.Context, id uuid.UUID, limit int) ([]domain.TransactionEntry, error) {
	if id == uuid.Nil {
		return nil, invalid("uuid is required")
	}
	return m.history.Recent(ctx, id, limit)
}

func invalid(message string) error {
	return nexuserrors.New(nexuserrors.CodeInvalidArgument, message)
}
