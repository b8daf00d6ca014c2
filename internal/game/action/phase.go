// Package action drives a unit's action from aim through confirm, execute,
// and resolve, including chain prompts and queued full-round actions.
package action

import "fmt"

// Phase is a step of the per-actor action state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAimBegin
	PhaseConfirmStart
	PhasePrecheckOK
	PhasePreDeductCheck
	PhaseChainPromptOpen
	PhaseExecuteBegin
	PhaseExecuteEnd
	PhaseResolveBegin
	PhaseResolveEnd
)

var phaseNames = map[Phase]string{
	PhaseIdle:            "IDLE",
	PhaseAimBegin:        "AIM_BEGIN",
	PhaseConfirmStart:    "CONFIRM_START",
	PhasePrecheckOK:      "PRECHECK_OK",
	PhasePreDeductCheck:  "PRE_DEDUCT_CHECK",
	PhaseChainPromptOpen: "CHAIN_PROMPT_OPEN",
	PhaseExecuteBegin:    "EXECUTE_BEGIN",
	PhaseExecuteEnd:      "EXECUTE_END",
	PhaseResolveBegin:    "RESOLVE_BEGIN",
	PhaseResolveEnd:      "RESOLVE_END",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// inFlight reports whether a confirmed action is between confirm and the
// end of resolve.
func (p Phase) inFlight() bool {
	switch p {
	case PhaseConfirmStart, PhasePrecheckOK, PhasePreDeductCheck,
		PhaseExecuteBegin, PhaseExecuteEnd, PhaseResolveBegin, PhaseResolveEnd:
		return true
	}
	return false
}
