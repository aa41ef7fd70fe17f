// Package outcome turns dice outcome and card effect text into structured
// effects. Text is matched against an ordered list of rules and every match
// of every rule is applied, so "pay $500 and lose 2 days" yields both a money
// and a time effect.
package outcome

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Draw is a card draw directive.
type Draw struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Effects is the result of parsing one piece of text.
type Effects struct {
	Money      int      `json:"money,omitempty"`
	TimeBonus  int      `json:"time_bonus,omitempty"`
	ScopePct   int      `json:"scope_pct,omitempty"`
	QualityPct int      `json:"quality_pct,omitempty"`
	Expertise  int      `json:"expertise,omitempty"`
	Discount   int      `json:"discount,omitempty"`
	Draws      []Draw   `json:"draws,omitempty"`
	Moves      []string `json:"moves,omitempty"`
	Matched    []string `json:"matched,omitempty"`
}

// Empty reports whether no rule matched.
func (e Effects) Empty() bool {
	return len(e.Matched) == 0
}

// Merge appends o into e.
func (e *Effects) Merge(o Effects) {
	e.Money += o.Money
	e.TimeBonus += o.TimeBonus
	e.ScopePct += o.ScopePct
	e.QualityPct += o.QualityPct
	e.Expertise += o.Expertise
	e.Discount += o.Discount
	e.Draws = append(e.Draws, o.Draws...)
	e.Moves = append(e.Moves, o.Moves...)
	e.Matched = append(e.Matched, o.Matched...)
}

// Scale multiplies every numeric effect by f, rounding half away from zero.
// Draws and moves are not scaled.
func (e Effects) Scale(f float64) Effects {
	scale := func(n int) int { return int(math.Round(float64(n) * f)) }
	e.Money = scale(e.Money)
	e.TimeBonus = scale(e.TimeBonus)
	e.ScopePct = scale(e.ScopePct)
	e.QualityPct = scale(e.QualityPct)
	e.Expertise = scale(e.Expertise)
	e.Discount = scale(e.Discount)
	return e
}

// Delta converts the effects to a resource delta against base. Scope changes
// are a percentage of base scope; a time bonus reduces elapsed time.
func (e Effects) Delta(base Resources) Resources {
	return Resources{
		Money:     e.Money,
		Time:      -e.TimeBonus,
		Scope:     base.Scope * e.ScopePct / 100,
		Quality:   e.QualityPct,
		Expertise: e.Expertise,
		Discount:  e.Discount,
	}
}

// Rule is one entry in the grammar. Apply is called once per match.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Apply   func(m []string, e *Effects)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return n
}

func signed(dir string, n int) int {
	if strings.HasPrefix(strings.ToLower(dir), "decrease") {
		return -n
	}
	return n
}

// Rules is the outcome grammar, in application order.
var Rules = []Rule{
	{
		Name:    "pay",
		Pattern: regexp.MustCompile(`(?i)\bpays?\s+\$?([\d,]+)\b(?:[^%]|$)`),
		Apply:   func(m []string, e *Effects) { e.Money -= atoi(m[1]) },
	},
	{
		Name:    "gain",
		Pattern: regexp.MustCompile(`(?i)\b(?:gain|receive|collect)s?\s+\$([\d,]+)`),
		Apply:   func(m []string, e *Effects) { e.Money += atoi(m[1]) },
	},
	{
		Name:    "lose-time",
		Pattern: regexp.MustCompile(`(?i)\blose\s+(\d+)\s+days?`),
		Apply:   func(m []string, e *Effects) { e.TimeBonus -= atoi(m[1]) },
	},
	{
		Name:    "save-time",
		Pattern: regexp.MustCompile(`(?i)\bsave\s+(\d+)\s+days?`),
		Apply:   func(m []string, e *Effects) { e.TimeBonus += atoi(m[1]) },
	},
	{
		Name:    "scope",
		Pattern: regexp.MustCompile(`(?i)\bscope\s+(increases?|decreases?)\s+(?:by\s+)?(\d+)%`),
		Apply:   func(m []string, e *Effects) { e.ScopePct += signed(m[1], atoi(m[2])) },
	},
	{
		Name:    "quality",
		Pattern: regexp.MustCompile(`(?i)\bquality\s+(increases?|decreases?)\s+(?:by\s+)?(\d+)%`),
		Apply:   func(m []string, e *Effects) { e.QualityPct += signed(m[1], atoi(m[2])) },
	},
	{
		Name:    "draw",
		Pattern: regexp.MustCompile(`(?i)\bdraw\s+(\d+\s+|an?\s+)?([BIWLE])\s+cards?\b`),
		Apply: func(m []string, e *Effects) {
			n := 1
			if s := strings.TrimSpace(m[1]); s != "" && !strings.EqualFold(s[:1], "a") {
				n = atoi(s)
			}
			if n > 0 {
				e.Draws = append(e.Draws, Draw{Type: strings.ToUpper(m[2]), Count: n})
			}
		},
	},
	{
		Name:    "move",
		Pattern: regexp.MustCompile(`(?i)\bmove\s+to\s+([A-Za-z0-9][A-Za-z0-9-]*)`),
		Apply:   func(m []string, e *Effects) { e.Moves = append(e.Moves, strings.ToUpper(m[1])) },
	},
}

// Parser applies a rule list. IsSpace, when set, lets a bare "DEST - note"
// outcome resolve to a move.
type Parser struct {
	rules   []Rule
	isSpace func(string) bool
}

// NewParser returns a parser over Rules followed by extra.
func NewParser(isSpace func(string) bool, extra ...Rule) *Parser {
	rules := make([]Rule, 0, len(Rules)+len(extra))
	rules = append(rules, Rules...)
	rules = append(rules, extra...)
	return &Parser{rules: rules, isSpace: isSpace}
}

var defaultParser = NewParser(nil)

// Parse parses text with the default grammar and no space lookup.
func Parse(text string) Effects {
	return defaultParser.Parse(text)
}

// Parse applies every match of every rule to a fresh Effects.
func (p *Parser) Parse(text string) Effects {
	var e Effects
	text = strings.TrimSpace(text)
	if text == "" {
		return e
	}
	for _, r := range p.rules {
		for _, m := range r.Pattern.FindAllStringSubmatch(text, -1) {
			r.Apply(m, &e)
			e.Matched = append(e.Matched, r.Name)
		}
	}
	if len(e.Moves) == 0 && p.isSpace != nil {
		if dest := CleanDestination(text); p.isSpace(dest) {
			e.Moves = append(e.Moves, dest)
			e.Matched = append(e.Matched, "destination")
		}
	}
	return e
}

// CleanDestination returns the space-name token of a "DEST - annotation"
// field: the text before the first " - ".
func CleanDestination(s string) string {
	if i := strings.Index(s, " - "); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

var cardCategory = regexp.MustCompile(`(?i)^([BIWLE])\s+cards?$`)

// Normalize expands the shorthand used by some dice categories into the
// grammar: a bare count under "W Cards" becomes "draw N W card", under
// "Time outcomes" it becomes "lose N days", and an amount under "Fees Paid"
// becomes "pay $N". Other text is returned unchanged.
func Normalize(category, value string) string {
	category = strings.TrimSpace(category)
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	if m := cardCategory.FindStringSubmatch(category); m != nil {
		if n, err := strconv.Atoi(value); err == nil {
			if n <= 0 {
				return ""
			}
			return "draw " + strconv.Itoa(n) + " " + strings.ToUpper(m[1]) + " card"
		}
		return value
	}

	switch strings.ToLower(category) {
	case "time outcomes", "time":
		if n, err := strconv.Atoi(value); err == nil {
			if n < 0 {
				return "save " + strconv.Itoa(-n) + " days"
			}
			return "lose " + strconv.Itoa(n) + " days"
		}
	case "fees paid", "fees":
		amount := strings.ReplaceAll(strings.TrimPrefix(value, "$"), ",", "")
		if n, err := strconv.Atoi(amount); err == nil {
			return "pay $" + strconv.Itoa(n)
		}
	}
	return value
}
