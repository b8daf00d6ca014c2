package action

import (
	"errors"
	"fmt"

	"github.com/hexline/hexline-server-go/internal/game/rules"
)

// Stage names where in the action flow a rejection happened.
type Stage string

const (
	StageAimRejected        Stage = "AIM_REJECTED"
	StageTargetInvalid      Stage = "TARGET_INVALID"
	StagePreDeductCheckFail Stage = "PRE_DEDUCT_CHECK_FAIL"
	StageConfirmAbort       Stage = "CONFIRM_ABORT"
	StageBlocked            Stage = "BLOCKED"
	StageChainRejected      Stage = "CHAIN_REJECTED"
)

// Error is an expected rejection. Unless Stage is StageBlocked, nothing was
// deducted, started, or committed.
type Error struct {
	Stage   Stage
	Reason  rules.Reason
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func reject(stage Stage, reason rules.Reason) *Error {
	return &Error{Stage: stage, Reason: reason, Message: reason.Message()}
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Construction errors.
var (
	ErrMissingOccupancy = errors.New("action: occupancy service is required")
	ErrMissingCooldowns = errors.New("action: cooldown store is required")
	ErrMissingEvaluator = errors.New("action: cost evaluator is required")
	ErrMissingBus       = errors.New("action: event bus is required")
)
