// Package errors provides coded errors shared by the sync engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidArgument marks a precondition violation rejected before any
	// store round-trip: blank identifiers, nil records, non-positive transfers.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeNotFound marks a lookup for a record or server that does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInsufficientFunds marks a rejected debit.
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"

	// CodeUnavailable marks a store or channel connectivity failure. It is
	// the only retryable code.
	CodeUnavailable Code = "UNAVAILABLE"

	// CodeMalformedMessage marks a channel payload that could not be decoded.
	CodeMalformedMessage Code = "MALFORMED_MESSAGE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidArgument, CodeMalformedMessage:
		return codes.InvalidArgument
	case CodeNotFound:
		return codes.NotFound
	case CodeInsufficientFunds:
		return codes.FailedPrecondition
	case CodeUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// Retryable reports whether an operation failing with this code may be
// re-issued.
func (c Code) Retryable() bool {
	return c == CodeUnavailable
}
