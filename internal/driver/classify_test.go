package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// rpcError mimics the JSON-RPC error returned by author_submitExtrinsic.
type rpcError struct {
	code int
	msg  string
	data interface{}
}

func (e *rpcError) Error() string          { return e.msg }
func (e *rpcError) ErrorCode() int         { return e.code }
func (e *rpcError) ErrorData() interface{} { return e.data }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o deadline reached" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.SubmissionOutcome
	}{
		{"nil", nil, types.OutcomeSubmitted},
		{"deadline", context.DeadlineExceeded, types.OutcomeTransport},
		{"wrapped cancel", fmt.Errorf("submit: %w", context.Canceled), types.OutcomeTransport},
		{"eof", io.ErrUnexpectedEOF, types.OutcomeTransport},
		{"net error", timeoutError{}, types.OutcomeTransport},
		{"stale by data", &rpcError{1010, "Invalid Transaction", "Transaction is outdated"}, types.OutcomeNonce},
		{"funds by data", &rpcError{1010, "Invalid Transaction", "Inability to pay some fees (e.g. account balance too low)"}, types.OutcomeFunds},
		{"invalid without data", &rpcError{1010, "Invalid Transaction", nil}, types.OutcomeInvalid},
		{"bad proof", &rpcError{1010, "Invalid Transaction", "Transaction has a bad signature"}, types.OutcomeInvalid},
		{"already imported", &rpcError{1013, "Transaction Already Imported", nil}, types.OutcomeNonce},
		{"priority too low", &rpcError{1014, "Priority is too low: (0 vs 0)", nil}, types.OutcomeNonce},
		{"temporarily banned", &rpcError{1012, "Transaction is temporarily banned", nil}, types.OutcomePool},
		{"immediately dropped", &rpcError{1016, "Immediately Dropped", nil}, types.OutcomePool},
		{"unknown validity", &rpcError{1011, "Unknown Transaction Validity", nil}, types.OutcomeInvalid},
		{"text pool full", errors.New("Transaction pool is full"), types.OutcomePool},
		{"text websocket", errors.New("websocket: close 1006 (abnormal closure)"), types.OutcomeTransport},
		{"text future", errors.New("Transaction will be valid in the future"), types.OutcomeNonce},
		{"text invalid", errors.New("Invalid Transaction: Custom error: 3"), types.OutcomeInvalid},
		{"unknown", errors.New("metadata mismatch"), types.OutcomeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
