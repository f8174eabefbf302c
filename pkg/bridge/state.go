package bridge

// State is the orchestrator's position in the bridge flow
type State string

const (
	StateIdle       State = "idle"
	StateQuoting    State = "quoting"
	StateReady      State = "ready"
	StateSwitching  State = "switching"
	StateConfirming State = "confirming"
	StateDepositing State = "depositing"
	StateBridging   State = "bridging"
	StateComplete   State = "complete"
	StateError      State = "error"
	StateWrongChain State = "wrong_chain"
	// StateSettlementDelayed is the advisory end state when the relay has not
	// confirmed delivery within the polling budget. The deposit itself succeeded.
	StateSettlementDelayed State = "settlement_delayed"
)

// transitions lists the allowed targets of each state. Reset to idle is
// allowed from anywhere and is not listed.
var transitions = map[State][]State{
	StateIdle:       {StateQuoting},
	StateQuoting:    {StateReady, StateError},
	StateReady:      {StateQuoting, StateSwitching, StateConfirming, StateWrongChain, StateError},
	StateSwitching:  {StateConfirming, StateWrongChain},
	StateConfirming: {StateDepositing, StateReady, StateQuoting, StateWrongChain},
	StateDepositing: {StateBridging, StateError},
	StateBridging:   {StateComplete, StateError, StateSettlementDelayed},
	StateError:      {StateQuoting},
	StateWrongChain: {StateQuoting, StateSwitching, StateConfirming, StateError},
}

// CanTransition reports whether from may move to to without a reset
func CanTransition(from, to State) bool {
	if from == to || to == StateIdle {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InFlight reports whether a transfer is being executed or settled
func (s State) InFlight() bool {
	switch s {
	case StateSwitching, StateConfirming, StateDepositing, StateBridging:
		return true
	}
	return false
}

// Terminal reports whether the session has finished and needs a reset
func (s State) Terminal() bool {
	return s == StateComplete || s == StateSettlementDelayed
}

// acceptsAmount reports whether the amount may be edited in s
func (s State) acceptsAmount() bool {
	switch s {
	case StateIdle, StateQuoting, StateReady, StateError, StateWrongChain:
		return true
	}
	return false
}
