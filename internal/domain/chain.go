package domain

// ChainStatus is the lifecycle state of a decision chain.
type ChainStatus string

const (
	ChainInProgress ChainStatus = "in_progress"
	ChainCompleted  ChainStatus = "completed"
	ChainError      ChainStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s ChainStatus) Terminal() bool {
	return s == ChainCompleted || s == ChainError
}

// DecisionStep is one reasoning/decision iteration of a chain.
type DecisionStep struct {
	StepID      string         `json:"step_id"`
	StepNumber  int            `json:"step_number"`
	Reasoning   string         `json:"reasoning"`
	Decision    string         `json:"decision"`
	NextActions []string       `json:"next_actions"`
	Metadata    map[string]any `json:"metadata"`
}

// DecisionChain is an ordered sequence of steps with a final outcome.
// Steps are owned by the chain and ordered by StepNumber ascending.
type DecisionChain struct {
	ChainID       string         `json:"chain_id"`
	Title         string         `json:"title"`
	Context       string         `json:"context"`
	Steps         []DecisionStep `json:"steps"`
	FinalDecision *string        `json:"final_decision"`
	Status        ChainStatus    `json:"status"`
}

// LastStep returns the most recent step, if any.
func (c *DecisionChain) LastStep() (DecisionStep, bool) {
	if len(c.Steps) == 0 {
		return DecisionStep{}, false
	}
	return c.Steps[len(c.Steps)-1], true
}
