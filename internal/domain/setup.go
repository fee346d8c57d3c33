package domain

import "fmt"

// MaxCompanions is the upper bound for AI companions at the table.
const MaxCompanions = 3

// UserCharacter is the human player's character.
type UserCharacter struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Class      string `json:"class"`
	Background string `json:"background"`
}

// Companion is an AI-controlled player character.
type Companion struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Role       string `json:"role"`
	Background string `json:"background"`
}

// SetupAggregate holds everything the user configures before play.
//
// len(Companions) == CompanionCount is kept by every method that touches
// either field; code outside this package should go through SetCompanionCount
// and SetCompanions instead of assigning them directly.
type SetupAggregate struct {
	RuleSystem     string        `json:"rule_system"`
	UserRole       UserRole      `json:"user_role"`
	ModuleWorld    string        `json:"module_world"`
	AIStyle        string        `json:"ai_style"`
	Resources      string        `json:"resources"`
	WorldNotes     string        `json:"world_notes"`
	UserCharacter  UserCharacter `json:"user_character"`
	CompanionCount int           `json:"companion_count"`
	Companions     []Companion   `json:"companions"`
}

// DefaultSetup returns the empty setup a new session starts with.
func DefaultSetup() SetupAggregate {
	return SetupAggregate{
		UserRole:   UserRolePL,
		Companions: []Companion{},
	}
}

// ClampCompanionCount bounds n to [0, MaxCompanions].
func ClampCompanionCount(n int) int {
	switch {
	case n < 0:
		return 0
	case n > MaxCompanions:
		return MaxCompanions
	default:
		return n
	}
}

// PlaceholderCompanion is the deterministic stand-in for slot index (1-based).
func PlaceholderCompanion(index int) Companion {
	return Companion{
		ID:   CompanionID(index),
		Name: fmt.Sprintf("AI队友%d", index),
	}
}

// CompanionID is the id of the companion in slot index (1-based).
func CompanionID(index int) string {
	return fmt.Sprintf("ai-%d", index)
}

// SetCompanionCount clamps n, stores it and truncates or pads the roster.
// Existing companions keep their positions.
func (s *SetupAggregate) SetCompanionCount(n int) {
	s.CompanionCount = ClampCompanionCount(n)
	s.Companions = ReconcileCompanions(s.Companions, s.CompanionCount, false)
}

// SetCompanions replaces the roster, fitting it to the current count and
// renumbering every id.
func (s *SetupAggregate) SetCompanions(list []Companion) {
	s.Companions = ReconcileCompanions(list, s.CompanionCount, true)
}

// ReconcileCompanions fits list to exactly count entries. Missing slots get
// placeholders. When renumber is set every id is rewritten to ai-{index}.
func ReconcileCompanions(list []Companion, count int, renumber bool) []Companion {
	count = ClampCompanionCount(count)
	out := make([]Companion, 0, count)
	for i := 0; i < count; i++ {
		if i >= len(list) {
			out = append(out, PlaceholderCompanion(i+1))
			continue
		}
		c := list[i]
		if renumber || c.ID == "" {
			c.ID = CompanionID(i + 1)
		}
		out = append(out, c)
	}
	return out
}

// Clone returns a deep copy safe to hand outside a lock.
func (s SetupAggregate) Clone() SetupAggregate {
	s.Companions = append([]Companion(nil), s.Companions...)
	if s.Companions == nil {
		s.Companions = []Companion{}
	}
	return s
}
