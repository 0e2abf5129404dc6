package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// Transaction pool error codes returned by author_submitExtrinsic.
const (
	codeInvalidTx        = 1010
	codeUnknownValidity  = 1011
	codeTemporarilyBan   = 1012
	codeAlreadyImported  = 1013
	codeTooLowPriority   = 1014
	codeCycleDetected    = 1015
	codeImmediateDropped = 1016
	codeUnactionable     = 1017
	codeFutureTx         = 1020
)

// rpcCodeError and rpcDataError match JSON-RPC errors that expose the
// response code and data field.
type rpcCodeError interface {
	error
	ErrorCode() int
}

type rpcDataError interface {
	error
	ErrorData() interface{}
}

var (
	nonceMarkers = []string{
		"outdated", "stale", "future", "priority is too low",
		"already imported", "nonce",
	}
	fundsMarkers = []string{
		"inability to pay some fees", "balance too low", "insufficient balance",
		"payment", "funds",
	}
	poolMarkers = []string{
		"temporarily banned", "immediately dropped", "pool is full", "limit reached",
	}
	transportMarkers = []string{
		"connection", "websocket", "broken pipe", "eof", "timeout", "i/o",
	}
)

// Classify maps a submission error to an outcome. A nil error is a
// successful submission.
func Classify(err error) types.SubmissionOutcome {
	if err == nil {
		return types.OutcomeSubmitted
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return types.OutcomeTransport
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return types.OutcomeTransport
	}

	text := strings.ToLower(errorText(err))

	var codeErr rpcCodeError
	if errors.As(err, &codeErr) {
		switch codeErr.ErrorCode() {
		case codeAlreadyImported, codeTooLowPriority, codeFutureTx:
			return types.OutcomeNonce
		case codeTemporarilyBan, codeImmediateDropped, codeCycleDetected:
			return types.OutcomePool
		case codeUnknownValidity, codeUnactionable:
			return types.OutcomeInvalid
		case codeInvalidTx:
			// Narrowed by the data field below, invalid otherwise
			if o, ok := classifyText(text); ok {
				return o
			}
			return types.OutcomeInvalid
		}
	}

	if o, ok := classifyText(text); ok {
		return o
	}
	if strings.Contains(text, "invalid") || strings.Contains(text, "bad signature") ||
		strings.Contains(text, "bad proof") {
		return types.OutcomeInvalid
	}
	return types.OutcomeOther
}

func classifyText(text string) (types.SubmissionOutcome, bool) {
	switch {
	case containsAny(text, fundsMarkers):
		return types.OutcomeFunds, true
	case containsAny(text, nonceMarkers):
		return types.OutcomeNonce, true
	case containsAny(text, poolMarkers):
		return types.OutcomePool, true
	case containsAny(text, transportMarkers):
		return types.OutcomeTransport, true
	}
	return "", false
}

// errorText joins the error message and the JSON-RPC data field, where the
// node puts the actual validity error ("Transaction is outdated", ...).
func errorText(err error) string {
	var dataErr rpcDataError
	if errors.As(err, &dataErr) {
		if data := dataErr.ErrorData(); data != nil {
			return fmt.Sprintf("%s: %v", err.Error(), data)
		}
	}
	return err.Error()
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
