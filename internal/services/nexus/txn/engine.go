package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
	"github.com/louisbranch/autonexus/internal/platform/logging"
	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
	"github.com/louisbranch/autonexus/internal/services/nexus/keys"
)

const instrumentationName = "github.com/louisbranch/autonexus/internal/services/nexus/txn"

// Engine runs the sanctioned atomic operations against the shared store.
// It is safe for concurrent use; atomicity across callers and processes
// comes from the store evaluating each script as one step.
type Engine struct {
	client   redis.UniversalClient
	keys     keys.Factory
	logger   *zap.Logger
	now      func() time.Time
	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// NewEngine builds an engine over client using the given key namespace.
func NewEngine(client redis.UniversalClient, factory keys.Factory, logger *zap.Logger) *Engine {
	meter := otel.Meter(instrumentationName)
	outcomes, err := meter.Int64Counter("autonexus.txn.outcomes",
		metric.WithDescription("Atomic transactions by operation and outcome"))
	logger = logging.OrNop(logger).Named("txn")
	if err != nil {
		logger.Warn("create txn counter", zap.Error(err))
		outcomes = noop.Int64Counter{}
	}
	return &Engine{
		client:   client,
		keys:     factory,
		logger:   logger,
		now:      time.Now,
		tracer:   otel.Tracer(instrumentationName),
		outcomes: outcomes,
	}
}

// Keys returns the key factory the engine writes with.
func (e *Engine) Keys() keys.Factory {
	return e.keys
}

// UpsertLocation moves a player to server and refreshes their name. An
// existing record keeps its metadata untouched; a missing one is created
// with empty metadata. Both name indexes are written in the same step.
func (e *Engine) UpsertLocation(ctx context.Context, id uuid.UUID, name, server string) (created bool, err error) {
	if id == uuid.Nil {
		return false, invalid("uuid is required")
	}
	server = strings.TrimSpace(server)
	if server == "" {
		return false, invalid("server is required")
	}
	name = strings.TrimSpace(name)

	reply, err := e.exec(ctx, Transaction{
		Op:     OpUpsertLocation,
		Keys:   []string{e.keys.Player(id), e.keys.NameIndex(name), e.keys.LegacyNameIndex(name)},
		Args:   []any{id.String(), name, server},
		script: upsertLocationScript,
	})
	if err != nil {
		return false, err
	}
	switch reply {
	case replyCreated:
		e.count(ctx, OpUpsertLocation, "created")
		return true, nil
	case replyUpdated:
		e.count(ctx, OpUpsertLocation, "updated")
		return false, nil
	default:
		return false, unexpected(OpUpsertLocation, reply)
	}
}

// MergeMetadata overwrites each key of updates in an existing record's
// metadata. It never creates records; a missing one yields StatusNotFound.
func (e *Engine) MergeMetadata(ctx context.Context, id uuid.UUID, updates map[string]string) (Result, error) {
	if id == uuid.Nil {
		return Result{}, invalid("uuid is required")
	}
	if len(updates) == 0 {
		return Result{}, invalid("updates are required")
	}
	for field := range updates {
		if strings.TrimSpace(field) == "" {
			return Result{}, invalid("update field names must not be blank")
		}
	}
	payload, err := json.Marshal(updates)
	if err != nil {
		return Result{}, fmt.Errorf("encode metadata updates: %w", err)
	}

	reply, err := e.exec(ctx, Transaction{
		Op:     OpMergeMetadata,
		Keys:   []string{e.keys.Player(id)},
		Args:   []any{string(payload)},
		script: mergeMetadataScript,
	})
	if err != nil {
		return Result{}, err
	}
	switch reply {
	case replyOK:
		e.count(ctx, OpMergeMetadata, StatusOK.String())
		return Result{Status: StatusOK}, nil
	case replyNotFound:
		e.count(ctx, OpMergeMetadata, StatusNotFound.String())
		return Result{Status: StatusNotFound}, nil
	default:
		return Result{}, unexpected(OpMergeMetadata, reply)
	}
}

// IncrementRequest describes one atomic increment of a resolved field.
type IncrementRequest struct {
	UUID  uuid.UUID
	Field string
	Delta float64
	// Group selects the leaderboard updated for balance fields.
	Group string
	// Source tags the balance notification with the originating process.
	Source string
	// Type defaults to the kind implied by the sign of Delta.
	Type         domain.TxType
	Counterparty uuid.UUID
	Reason       string
	// Token makes the increment replay-safe: a second evaluation with the
	// same token returns the first result without applying Delta again.
	Token string
}

// IncrementField adds Delta to a numeric field. Missing or unparseable
// values count as zero. A debit that would go negative is rejected with
// nothing written. For balance fields with a non-zero delta the same step
// appends a history entry, re-ranks the player and publishes a notification.
func (e *Engine) IncrementField(ctx context.Context, req IncrementRequest) (Result, error) {
	if req.UUID == uuid.Nil {
		return Result{}, invalid("uuid is required")
	}
	field := strings.TrimSpace(req.Field)
	if field == "" {
		return Result{}, invalid("field is required")
	}
	if math.IsNaN(req.Delta) || math.IsInf(req.Delta, 0) {
		return Result{}, invalid("delta must be finite")
	}
	txType := req.Type
	if txType == "" {
		txType = domain.TxTypeFor(req.Delta)
	}

	txKeys := []string{
		e.keys.Player(req.UUID),
		e.keys.History(req.UUID),
		e.keys.Leaderboard(req.Group),
		e.keys.LeaderboardMembers(req.Group),
	}
	if token := strings.TrimSpace(req.Token); token != "" {
		txKeys = append(txKeys, e.keys.Idempotency(token))
	}

	reply, err := e.exec(ctx, Transaction{
		Op:   OpIncrementField,
		Keys: txKeys,
		Args: []any{
			field,
			domain.FormatAmount(req.Delta),
			flag(domain.IsBalanceField(field)),
			strings.TrimSpace(req.Source),
			string(txType),
			counterparty(req.Counterparty),
			req.UUID.String(),
			e.timestamp(),
			strings.TrimSpace(req.Reason),
		},
		script: incrementFieldScript,
	})
	if err != nil {
		return Result{}, err
	}
	return e.valueResult(ctx, OpIncrementField, reply)
}

// TransferRequest describes one atomic two-party transfer of a resolved field.
type TransferRequest struct {
	From   uuid.UUID
	To     uuid.UUID
	Field  string
	Amount float64
	Group  string
	Source string
	Reason string
	Token  string
}

// TransferField moves Amount of a field from one player to another. A
// missing source, or a source that would go negative, is rejected with
// neither side written. A missing destination starts from zero. The result
// value is the new source balance.
func (e *Engine) TransferField(ctx context.Context, req TransferRequest) (Result, error) {
	if req.From == uuid.Nil || req.To == uuid.Nil {
		return Result{}, invalid("from and to are required")
	}
	if req.From == req.To {
		return Result{}, invalid("cannot transfer to the same player")
	}
	field := strings.TrimSpace(req.Field)
	if field == "" {
		return Result{}, invalid("field is required")
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return Result{}, invalid("amount must be greater than zero")
	}

	txKeys := []string{
		e.keys.Player(req.From),
		e.keys.Player(req.To),
		e.keys.History(req.From),
		e.keys.History(req.To),
		e.keys.Leaderboard(req.Group),
		e.keys.LeaderboardMembers(req.Group),
	}
	if token := strings.TrimSpace(req.Token); token != "" {
		txKeys = append(txKeys, e.keys.Idempotency(token))
	}

	reply, err := e.exec(ctx, Transaction{
		Op:   OpTransferField,
		Keys: txKeys,
		Args: []any{
			field,
			domain.FormatAmount(req.Amount),
			flag(domain.IsBalanceField(field)),
			strings.TrimSpace(req.Source),
			req.From.String(),
			req.To.String(),
			e.timestamp(),
			strings.TrimSpace(req.Reason),
		},
		script: transferFieldScript,
	})
	if err != nil {
		return Result{}, err
	}
	if reply == replyInvalidAmount {
		return Result{}, invalid("amount must be greater than zero")
	}
	return e.valueResult(ctx, OpTransferField, reply)
}

// Rank sets a player's leaderboard score, replacing the member left by a
// previous display name.
func (e *Engine) Rank(ctx context.Context, group string, id uuid.UUID, name string, score float64) error {
	if id == uuid.Nil {
		return invalid("uuid is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("display name is required")
	}
	_, err := e.exec(ctx, Transaction{
		Op:     OpRank,
		Keys:   []string{e.keys.Leaderboard(group), e.keys.LeaderboardMembers(group)},
		Args:   []any{id.String(), name, domain.FormatAmount(score)},
		script: rankScript,
	})
	return err
}

// Unrank removes a player from a group leaderboard.
func (e *Engine) Unrank(ctx context.Context, group string, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, invalid("uuid is required")
	}
	ctx, span := e.tracer.Start(ctx, "txn."+string(OpUnrank))
	defer span.End()
	removed, err := unrankScript.Run(ctx, e.client,
		[]string{e.keys.Leaderboard(group), e.keys.LeaderboardMembers(group)},
		id.String(),
	).Int()
	if err != nil {
		return false, classify(OpUnrank, err)
	}
	return removed == 1, nil
}

// Record reads a player record. ok is false when none exists.
func (e *Engine) Record(ctx context.Context, id uuid.UUID) (record domain.PlayerRecord, ok bool, err error) {
	if id == uuid.Nil {
		return domain.PlayerRecord{}, false, invalid("uuid is required")
	}
	raw, err := e.client.Get(ctx, e.keys.Player(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PlayerRecord{}, false, nil
	}
	if err != nil {
		return domain.PlayerRecord{}, false, classify("get_record", err)
	}
	record, err = domain.DecodePlayerRecord(raw)
	if err != nil {
		return domain.PlayerRecord{}, false, err
	}
	return record, true, nil
}

// ResolveUUID looks a display name up in the current index, then in the
// legacy namespaced one.
func (e *Engine) ResolveUUID(ctx context.Context, name string) (uuid.UUID, bool, error) {
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, false, invalid("name is required")
	}
	for _, key := range []string{e.keys.NameIndex(name), e.keys.LegacyNameIndex(name)} {
		raw, err := e.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return uuid.Nil, false, classify("resolve_uuid", err)
		}
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			e.logger.Warn("skip malformed name index entry", zap.String("key", key), zap.Error(err))
			continue
		}
		return id, true, nil
	}
	return uuid.Nil, false, nil
}

func (e *Engine) valueResult(ctx context.Context, op Op, reply string) (Result, error) {
	switch reply {
	case replyNotFound:
		e.count(ctx, op, StatusNotFound.String())
		return Result{Status: StatusNotFound, Value: "0"}, nil
	case replyInsufficientFunds:
		e.count(ctx, op, StatusInsufficientFunds.String())
		return Result{Status: StatusInsufficientFunds}, nil
	}
	if _, err := strconv.ParseFloat(reply, 64); err != nil {
		return Result{}, unexpected(op, reply)
	}
	e.count(ctx, op, StatusOK.String())
	return Result{Status: StatusOK, Value: reply}, nil
}

func (e *Engine) timestamp() string {
	return strconv.FormatInt(e.now().UnixMilli(), 10)
}

func invalid(message string) error {
	return nexuserrors.New(nexuserrors.CodeInvalidArgument, message)
}

func unexpected(op Op, reply string) error {
	return nexuserrors.WithMetadata(nexuserrors.CodeUnknown,
		fmt.Sprintf("unexpected %s reply %q", op, reply),
		map[string]string{"op": string(op)})
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func counterparty(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
