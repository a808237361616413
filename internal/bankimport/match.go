package bankimport

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Level is the strength of a member suggestion.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// MatchConfig tunes the heuristic.
type MatchConfig struct {
	Scores    map[Level]float64
	Threshold float64
	// MemberNumberPatterns must capture the member number in group 1.
	MemberNumberPatterns []string
}

// DefaultMatchConfig returns the association's matching rules.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		Scores:    map[Level]float64{LevelHigh: 0.9, LevelMedium: 0.7, LevelLow: 0.5},
		Threshold: 0.7,
		MemberNumberPatterns: []string{
			`(?:nr|numer|czlonek|czł|m)[:\s]*(\d+)`,
			`(?:członek|członka)[:\s]*(\d+)`,
			`(\d+)/20\d{2}`,
			`stw[:\s]*(\d+)`,
		},
	}
}

// Candidate is a member the heuristic may pick.
type Candidate struct {
	ID           uint64
	MemberNumber string
	FirstName    string
	LastName     string
}

func (c Candidate) fullName() string { return strings.TrimSpace(c.FirstName + " " + c.LastName) }

// OpenFee is a pending fee that an incoming payment may settle.
type OpenFee struct {
	ID          uint64
	MemberID    uint64
	Amount      decimal.Decimal
	DueDate     time.Time
	FeeTypeName string
}

// Suggestion is the heuristic's best guess for one entry.
type Suggestion struct {
	MemberID    uint64  `json:"member_id"`
	MemberName  string  `json:"member_name"`
	Level       Level   `json:"level"`
	Score       float64 `json:"score"`
	FeeID       *uint64 `json:"fee_id,omitempty"`
	FeeTypeName string  `json:"fee_type_name,omitempty"`
}

// Matcher holds lookup tables built once per import.
type Matcher struct {
	cfg      MatchConfig
	patterns []*regexp.Regexp
	byNumber map[string]Candidate
	lastKeys []string
	byLast   map[string][]Candidate
	fees     map[uint64][]OpenFee
}

// NewMatcher indexes members and their pending fees. Candidate order
// decides ties, so callers should pass members in a stable order.
func NewMatcher(cfg MatchConfig, members []Candidate, fees []OpenFee) *Matcher {
	m := &Matcher{
		cfg:      cfg,
		byNumber: make(map[string]Candidate),
		byLast:   make(map[string][]Candidate),
		fees:     make(map[uint64][]OpenFee),
	}
	for _, p := range cfg.MemberNumberPatterns {
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)`+p))
	}
	for _, c := range members {
		if c.MemberNumber != "" {
			m.byNumber[c.MemberNumber] = c
		}
		key := strings.ToLower(c.LastName)
		if _, seen := m.byLast[key]; !seen {
			m.lastKeys = append(m.lastKeys, key)
		}
		m.byLast[key] = append(m.byLast[key], c)
	}
	for _, f := range fees {
		m.fees[f.MemberID] = append(m.fees[f.MemberID], f)
	}
	for id := range m.fees {
		list := m.fees[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].DueDate.Before(list[j].DueDate) })
	}
	return m
}

// Auto reports whether s is strong enough to be applied without review.
func (m *Matcher) Auto(s Suggestion) bool {
	return s.Score >= m.cfg.Threshold
}

// Match suggests a member, and a fee to settle, for an incoming payment.
// Outgoing payments are never matched.
func (m *Matcher) Match(e Entry) (Suggestion, bool) {
	if !e.IsIncome() {
		return Suggestion{}, false
	}
	text := strings.ToLower(e.Description + " " + e.Counterparty)
	c, level, ok := m.findMember(text, e.Amount)
	if !ok {
		return Suggestion{}, false
	}
	s := Suggestion{
		MemberID:   c.ID,
		MemberName: c.fullName(),
		Level:      level,
		Score:      m.cfg.Scores[level],
	}
	if f, ok := m.feeFor(c.ID, e.Amount); ok {
		id := f.ID
		s.FeeID = &id
		s.FeeTypeName = f.FeeTypeName
	}
	return s, true
}

func (m *Matcher) findMember(text string, amount decimal.Decimal) (Candidate, Level, bool) {
	for _, re := range m.patterns {
		if g := re.FindStringSubmatch(text); g != nil {
			if c, ok := m.byNumber[g[1]]; ok {
				return c, LevelHigh, true
			}
		}
	}

	for _, last := range m.lastKeys {
		if len([]rune(last)) < 3 || !strings.Contains(text, last) {
			continue
		}
		list := m.byLast[last]
		for _, c := range list {
			if _, ok := m.feeFor(c.ID, amount); ok {
				return c, LevelHigh, true
			}
		}
		if len(list) == 1 {
			return list[0], LevelMedium, true
		}
		for _, c := range list {
			if first := strings.ToLower(c.FirstName); first != "" && strings.Contains(text, first) {
				return c, LevelMedium, true
			}
		}
		return list[0], LevelLow, true
	}

	// Amount alone counts only when exactly one pending fee has it.
	var hit *OpenFee
	hits := 0
	for _, list := range m.fees {
		for i := range list {
			if sameAmount(list[i].Amount, amount) {
				hits++
				hit = &list[i]
			}
		}
	}
	if hits == 1 {
		for _, last := range m.lastKeys {
			for _, c := range m.byLast[last] {
				if c.ID == hit.MemberID {
					return c, LevelLow, true
				}
			}
		}
	}
	return Candidate{}, "", false
}

// feeFor returns the member's oldest pending fee of exactly this amount.
func (m *Matcher) feeFor(memberID uint64, amount decimal.Decimal) (OpenFee, bool) {
	for _, f := range m.fees[memberID] {
		if sameAmount(f.Amount, amount) {
			return f, true
		}
	}
	return OpenFee{}, false
}

var cent = decimal.New(1, -2)

func sameAmount(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(cent)
}

// Scored is a ranked member suggestion for manual matching.
type Scored struct {
	MemberID   uint64   `json:"member_id"`
	MemberName string   `json:"member_name"`
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons"`
}

// Rank scores every member against a transaction's text: member number
// +100, last name +50, first name +20. The best five are returned.
func Rank(description, counterparty string, members []Candidate) []Scored {
	text := strings.ToLower(description + " " + counterparty)
	var out []Scored
	for _, c := range members {
		s := Scored{MemberID: c.ID, MemberName: c.fullName(), Reasons: []string{}}
		if c.MemberNumber != "" && strings.Contains(text, strings.ToLower(c.MemberNumber)) {
			s.Score += 100
			s.Reasons = append(s.Reasons, "member_number")
		}
		if last := strings.ToLower(c.LastName); last != "" && strings.Contains(text, last) {
			s.Score += 50
			s.Reasons = append(s.Reasons, "last_name")
		}
		if first := strings.ToLower(c.FirstName); first != "" && strings.Contains(text, first) {
			s.Score += 20
			s.Reasons = append(s.Reasons, "first_name")
		}
		if s.Score > 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
