package app

import (
	"fmt"
	"strings"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a member whose signal queue is full.
type Policy interface {
	OnBackPressure(member core.MemberSession) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.MemberSession) BackpressureAction {
	return KickMember
}

// BudgetPolicy admits participants past the voice budget with a fixed action.
type BudgetPolicy struct {
	Action core.BudgetAction
}

func (p BudgetPolicy) OnOverBudget(domain.Participant, int, int) core.BudgetAction {
	return p.Action
}

// ParseBudgetPolicy understands "warn", "allow" and "allow_muted".
func ParseBudgetPolicy(s string) (BudgetPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn":
		return BudgetPolicy{Action: core.BudgetWarn}, nil
	case "allow":
		return BudgetPolicy{Action: core.BudgetAllow}, nil
	case "allow_muted", "allow-muted", "muted":
		return BudgetPolicy{Action: core.BudgetAllowMuted}, nil
	}
	return BudgetPolicy{}, fmt.Errorf("unknown budget policy %q", s)
}
