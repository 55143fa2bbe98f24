// Package txn executes the indivisible read-check-write steps of the sync
// network as scripts evaluated by the shared store.
package txn

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	nexuserrors "github.com/louisbranch/autonexus/internal/platform/errors"
)

// Op names a transaction kind in traces and metrics.
type Op string

const (
	OpUpsertLocation Op = "upsert_location"
	OpMergeMetadata  Op = "merge_metadata"
	OpIncrementField Op = "increment_field"
	OpTransferField  Op = "transfer_field"
	OpRank           Op = "rank"
	OpUnrank         Op = "unrank"
)

// Transaction is one step the store evaluates atomically: it reads the
// current state of Keys, decides, and writes, with no other writer able to
// interleave. Only the engine builds transactions.
type Transaction struct {
	Op     Op
	Keys   []string
	Args   []any
	script *redis.Script
}

// Status is the business outcome of a transaction.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusInsufficientFunds
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusInsufficientFunds:
		return "insufficient_funds"
	default:
		return "unknown"
	}
}

// Result carries the outcome of a transaction. Rejections are results, not
// errors, so callers branch on Status.
type Result struct {
	Status Status
	// Value is the new field value for increments and the new source
	// balance for transfers.
	Value string
}

// Applied reports whether the store was mutated.
func (r Result) Applied() bool {
	return r.Status == StatusOK
}

// Number parses Value, returning zero when it is not numeric.
func (r Result) Number() float64 {
	n, err := strconv.ParseFloat(r.Value, 64)
	if err != nil {
		return 0
	}
	return n
}

// exec evaluates tx and returns the raw string reply.
func (e *Engine) exec(ctx context.Context, tx Transaction) (string, error) {
	ctx, span := e.tracer.Start(ctx, "txn."+string(tx.Op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("autonexus.txn.op", string(tx.Op)),
		),
	)
	defer span.End()

	reply, err := tx.script.Run(ctx, e.client, tx.Keys, tx.Args...).Text()
	if err != nil {
		err = classify(tx.Op, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.count(ctx, tx.Op, "error")
		return "", err
	}
	return reply, nil
}

func (e *Engine) count(ctx context.Context, op Op, status string) {
	e.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", string(op)),
		attribute.String("status", status),
	))
}

// classify separates script failures, which re-running cannot fix, from
// transport failures, which are retryable.
func classify(op Op, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) && !errors.Is(err, redis.Nil) {
		return nexuserrors.Wrap(nexuserrors.CodeUnknown, "evaluate "+string(op), err)
	}
	return nexuserrors.Wrap(nexuserrors.CodeUnavailable, "evaluate "+string(op), err)
}
