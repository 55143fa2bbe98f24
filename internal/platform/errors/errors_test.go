package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("increment: %w", Wrap(CodeUnavailable, "eval script", stderrors.New("dial tcp: refused")))

	if !stderrors.Is(err, New(CodeUnavailable, "")) {
		t.Fatal("expected wrapped error to match unavailable code")
	}
	if stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("did not expect wrapped error to match not found code")
	}
	if got := CodeOf(err); got != CodeUnavailable {
		t.Fatalf("code = %s, want %s", got, CodeUnavailable)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: stderrors.New("boom"), want: false},
		{name: "unavailable", err: New(CodeUnavailable, "store down"), want: true},
		{name: "invalid", err: New(CodeInvalidArgument, "uuid is required"), want: false},
		{name: "funds", err: New(CodeInsufficientFunds, "debit rejected"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestToGRPCStatus(t *testing.T) {
	err := WithMetadata(CodeInsufficientFunds, "debit rejected", map[string]string{"field": "balance_default"})

	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("grpc code = %v, want %v", st.Code(), codes.FailedPrecondition)
	}
	details := st.Details()
	if len(details) != 1 {
		t.Fatalf("details len = %d, want 1", len(details))
	}
	info, ok := details[0].(*errdetails.ErrorInfo)
	if !ok {
		t.Fatalf("detail type = %T, want *errdetails.ErrorInfo", details[0])
	}
	if info.Reason != string(CodeInsufficientFunds) || info.Metadata["field"] != "balance_default" {
		t.Fatalf("error info = %+v", info)
	}
}
