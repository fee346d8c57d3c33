package domain

// CharacterCard is a character sheet filled in by callers. The session only
// stores it.
type CharacterCard struct {
	Name       string         `json:"name"`
	Class      string         `json:"class"`
	Level      int            `json:"level"`
	HP         int            `json:"hp"`
	MaxHP      int            `json:"max_hp"`
	Stats      map[string]int `json:"stats"`
	Background string         `json:"background,omitempty"`
	Equipment  []string       `json:"equipment,omitempty"`
}
