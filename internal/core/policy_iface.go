package core

import "github.com/dkeye/VoiceRouter/internal/domain"

type BudgetAction int

const (
	// BudgetWarn creates the sink pair and only logs.
	BudgetWarn BudgetAction = iota
	// BudgetAllow creates the sink pair silently.
	BudgetAllow
	// BudgetAllowMuted creates the sink pair muted.
	BudgetAllowMuted
)

// BudgetPolicy decides how a participant past the voice budget is admitted.
// Pairs are always created; the policy only shapes their initial state.
type BudgetPolicy interface {
	OnOverBudget(p domain.Participant, active, budget int) BudgetAction
}
