package cards

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AaronLay10/ProjectBoard/internal/outcome"
)

// Play rejection reasons.
var (
	ErrWrongPhase         = errors.New("card phase does not match the current space")
	ErrWrongColor         = errors.New("card color does not match the current space")
	ErrDebtLimit          = errors.New("loan would exceed the debt limit")
	ErrNotInvestmentPhase = errors.New("investment cards are limited to early phases")
	ErrUnknownCardType    = errors.New("unknown card type")
)

// Rules are the game-balance constants used for play decisions.
type Rules struct {
	DebtMultiple     int
	ColorBonus       float64
	InvestmentPhases []string
}

// PlayContext is where and by whom a card is played.
type PlayContext struct {
	Phase      string
	SpaceColor string
	Resources  outcome.Resources
}

// Check returns nil if c may be played in ctx, or the reason it may not.
func (r Rules) Check(c Card, ctx PlayContext) error {
	switch c.Type {
	case TypeWork:
		if !phaseMatch(c, ctx.Phase) {
			return ErrWrongPhase
		}
	case TypeExpert:
		if !phaseMatch(c, ctx.Phase) {
			return ErrWrongPhase
		}
		if !c.AllColors() && !strings.EqualFold(c.Color, ctx.SpaceColor) {
			return ErrWrongColor
		}
	case TypeBank:
		total := ctx.Resources.Debt + c.Amount + interest(c)
		if total > r.DebtMultiple*ctx.Resources.Money {
			return fmt.Errorf("%w: %d > %d x %d", ErrDebtLimit, total, r.DebtMultiple, ctx.Resources.Money)
		}
	case TypeInvestor:
		if !r.investmentPhase(ctx.Phase) {
			return ErrNotInvestmentPhase
		}
	case TypeLife:
	default:
		return ErrUnknownCardType
	}
	return nil
}

// CanPlay reports whether c may be played in ctx.
func (r Rules) CanPlay(c Card, ctx PlayContext) bool {
	return r.Check(c, ctx) == nil
}

func phaseMatch(c Card, phase string) bool {
	return c.AnyPhase() || strings.EqualFold(c.Phase, phase)
}

func interest(c Card) int {
	return c.Amount * c.LoanPercent / 100
}

func (r Rules) investmentPhase(phase string) bool {
	for _, p := range r.InvestmentPhases {
		if strings.EqualFold(p, phase) {
			return true
		}
	}
	return false
}

func firstInt(m []string) int {
	for _, s := range m[1:] {
		if s != "" {
			n, _ := strconv.Atoi(s)
			return n
		}
	}
	return 0
}

// EffectRules extend the outcome grammar with card effect keywords.
var EffectRules = []outcome.Rule{
	{
		Name:    "time-reduction",
		Pattern: regexp.MustCompile(`(?i)\breduces?\s+time\s+by\s+(\d+)\s+days?|\b(\d+)\s+days?\s+time\s+reduction`),
		Apply:   func(m []string, e *outcome.Effects) { e.TimeBonus += firstInt(m) },
	},
	{
		Name:    "cost-reduction",
		Pattern: regexp.MustCompile(`(?i)\breduces?\s+(?:costs?|fees?)\s+by\s+(\d+)%|\b(\d+)%\s+(?:cost|fee)\s+reduction|\b(\d+)%\s+discount`),
		Apply:   func(m []string, e *outcome.Effects) { e.Discount += firstInt(m) },
	},
	{
		Name:    "quality-gain",
		Pattern: regexp.MustCompile(`(?i)\b(?:improves?|increases?)\s+quality\s+by\s+(\d+)%`),
		Apply:   func(m []string, e *outcome.Effects) { e.QualityPct += firstInt(m) },
	},
	{
		Name:    "expertise",
		Pattern: regexp.MustCompile(`(?i)\+(\d+)\s+expertise|\bgains?\s+(\d+)\s+expertise`),
		Apply:   func(m []string, e *outcome.Effects) { e.Expertise += firstInt(m) },
	},
}

var effectParser = outcome.NewParser(nil, EffectRules...)

// ParseEffect parses card effect text with the card keywords enabled.
func ParseEffect(text string) outcome.Effects {
	return effectParser.Parse(text)
}

// Result is the outcome of applying a card.
type Result struct {
	Delta      outcome.Resources `json:"delta"`
	Effects    outcome.Effects   `json:"effects"`
	ColorBonus bool              `json:"color_bonus,omitempty"`
}

// Apply computes what playing c does to a player with resources ctx.Resources.
// The card's own amount is applied as-is; text effects get the colour bonus
// when the card colour matches the space colour.
func (r Rules) Apply(c Card, ctx PlayContext) Result {
	var res Result
	res.Effects = ParseEffect(c.Effect)
	if !c.AllColors() && ctx.SpaceColor != "" && strings.EqualFold(c.Color, ctx.SpaceColor) && r.ColorBonus > 0 {
		res.Effects = res.Effects.Scale(r.ColorBonus)
		res.ColorBonus = true
	}
	res.Delta = res.Effects.Delta(ctx.Resources)

	switch c.Type {
	case TypeBank:
		res.Delta.Money += c.Amount
		res.Delta.Debt += c.Amount + interest(c)
	case TypeInvestor:
		res.Delta.Money += c.Amount
	case TypeWork:
		res.Delta.Scope += c.Amount
	case TypeExpert:
		res.Delta.Money -= c.Cost
	}
	return res
}
