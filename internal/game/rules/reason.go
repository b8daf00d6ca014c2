package rules

// Reason is the closed set of rejection causes surfaced by the combat core.
// Expected rejections are reported as values, never as panics.
type Reason string

const (
	ReasonOK Reason = ""

	ReasonNotReady          Reason = "NOT_READY"
	ReasonBusy              Reason = "BUSY"
	ReasonOnCooldown        Reason = "ON_COOLDOWN"
	ReasonNotEnoughResource Reason = "NOT_ENOUGH_RESOURCE"
	ReasonNoBudget          Reason = "NO_BUDGET"
	ReasonPathBlocked       Reason = "PATH_BLOCKED"
	ReasonNoPath            Reason = "NO_PATH"
	ReasonCantMove          Reason = "CANT_MOVE"
	ReasonBlocked           Reason = "BLOCKED"
	ReasonAlreadyPlaced     Reason = "ALREADY_PLACED"
	ReasonNotPlaced         Reason = "NOT_PLACED"
	ReasonActorMissing      Reason = "ACTOR_MISSING"
	ReasonNoStore           Reason = "NO_STORE"
	ReasonAdapterMissing    Reason = "ADAPTER_MISSING"
	ReasonMultiStore        Reason = "MULTI_STORE_MISMATCH"
	ReasonOutOfBounds       Reason = "OUT_OF_BOUNDS"
	ReasonTokenInvalid      Reason = "TOKEN_INVALID"
	ReasonWrongPhase        Reason = "WRONG_PHASE"
	ReasonFullRoundPending  Reason = "FULL_ROUND_PENDING"
	ReasonInvalidTarget     Reason = "INVALID_TARGET"
	ReasonKindNotAllowed    Reason = "KIND_NOT_ALLOWED"
	ReasonChainIncompatible Reason = "CHAIN_INCOMPATIBLE"
	ReasonCancelled         Reason = "CANCELLED"
)

var reasonMessages = map[Reason]string{
	ReasonNotReady:          "That action is not available right now.",
	ReasonBusy:              "Another action is still in progress.",
	ReasonOnCooldown:        "That ability is recharging.",
	ReasonNotEnoughResource: "Not enough energy.",
	ReasonNoBudget:          "Not enough time left this turn.",
	ReasonPathBlocked:       "The path is blocked.",
	ReasonNoPath:            "No path to that cell.",
	ReasonCantMove:          "This unit cannot move.",
	ReasonBlocked:           "That cell is occupied.",
	ReasonAlreadyPlaced:     "Unit is already on the board.",
	ReasonNotPlaced:         "Unit is not on the board.",
	ReasonOutOfBounds:       "That cell is off the board.",
	ReasonWrongPhase:        "It is not this unit's phase.",
	ReasonFullRoundPending:  "This unit is committed to a full-round action.",
	ReasonInvalidTarget:     "Invalid target.",
	ReasonKindNotAllowed:    "That action cannot follow here.",
	ReasonChainIncompatible: "That action cannot chain from the previous one.",
	ReasonCancelled:         "Cancelled.",
}

// OK reports whether the reason represents success.
func (r Reason) OK() bool {
	return r == ReasonOK
}

func (r Reason) String() string {
	if r == ReasonOK {
		return "OK"
	}
	return string(r)
}

// Message returns a short human text for feedback UI. It is cosmetic and
// must never be parsed by logic.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}
