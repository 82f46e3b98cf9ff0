// Package split divides a bill total among named participants.
package split

import (
	"fmt"
	"math"
	"strings"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

// Result is the outcome of a split. AmountPerPerson is the raw quotient;
// rounding only happens in Shares.
type Result struct {
	Total           float64
	Participants    []string
	Type            core.SplitType
	AmountPerPerson float64
}

// Share is the display amount one participant owes.
type Share struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// ParseParticipants splits a comma separated list of names, trimming each
// one and dropping empty tokens.
func ParseParticipants(raw string) ([]string, error) {
	var names []string
	for _, tok := range strings.Split(raw, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			names = append(names, tok)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no participants", core.ErrInvalidInput)
	}
	return names, nil
}

// Equal divides total evenly. The quotient is used as is.
func Equal(total float64, participants []string) (Result, error) {
	if len(participants) == 0 {
		return Result{}, fmt.Errorf("%w: no participants", core.ErrInvalidInput)
	}
	if !(total > 0) || math.IsInf(total, 1) {
		return Result{}, fmt.Errorf("%w: total must be positive", core.ErrInvalidInput)
	}
	return Result{
		Total:           total,
		Participants:    append([]string(nil), participants...),
		Type:            core.Equal,
		AmountPerPerson: total / float64(len(participants)),
	}, nil
}

// Compute dispatches on the split type. Custom splits are recognised but
// not computed.
func Compute(total float64, participants []string, t core.SplitType) (Result, error) {
	switch t {
	case core.Equal:
		return Equal(total, participants)
	case core.Custom:
		return Result{}, fmt.Errorf("custom split: %w", core.ErrNotSupported)
	default:
		return Result{}, fmt.Errorf("%w: unknown split type %q", core.ErrInvalidInput, t)
	}
}

// Shares returns what each participant should pay, rounded half-up to cents.
func (r Result) Shares() []Share {
	each := core.Round2(r.AmountPerPerson)
	out := make([]Share, len(r.Participants))
	for i, p := range r.Participants {
		out[i] = Share{Name: p, Amount: each}
	}
	return out
}

// Discrepancy is total minus the sum of the displayed shares. A split of
// 100 among three shows 33.33 each and leaves 0.01 unassigned.
func (r Result) Discrepancy() decimal.Decimal {
	shown := decimal.Zero
	for _, s := range r.Shares() {
		shown = shown.Add(s.Amount)
	}
	return core.Round2(r.Total).Sub(shown)
}
