package prompt

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\\r?\\n?(.*?)```")

// ExtractJSONObject pulls a JSON object out of model output. It prefers the
// first fenced code block, then slices from the first '{' to the last '}'.
//
// Stray braces outside the intended object break it; the caller gets
// InvalidJSON in that case. Text without any '{' is NoJSONFound.
func ExtractJSONObject(text string) (json.RawMessage, error) {
	candidate := text
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}

	start := strings.Index(candidate, "{")
	if start < 0 {
		return nil, domain.ErrNoJSONFound
	}
	end := strings.LastIndex(candidate, "}")
	if end < start {
		return nil, domain.NewErrorf(domain.ErrInvalidJSON, nil, "未闭合的 JSON 对象")
	}

	raw := []byte(candidate[start : end+1])
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, domain.NewErrorf(domain.ErrInvalidJSON, err, "%s", err.Error())
	}
	return json.RawMessage(raw), nil
}

// looseString accepts any JSON scalar and keeps it as text; null and missing
// become "".
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = looseString(str)
		return nil
	}
	*s = looseString(b)
	return nil
}

type generatedCharacter struct {
	Name       looseString `json:"name"`
	Title      looseString `json:"title"`
	Class      looseString `json:"class"`
	Background looseString `json:"background"`
}

type generatedCompanion struct {
	Name       looseString `json:"name"`
	Title      looseString `json:"title"`
	Role       looseString `json:"role"`
	Background looseString `json:"background"`
}

// ParseUserCharacter extracts a character from model output. Missing fields
// are empty.
func ParseUserCharacter(text string) (domain.UserCharacter, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return domain.UserCharacter{}, err
	}
	var g generatedCharacter
	if err := json.Unmarshal(raw, &g); err != nil {
		return domain.UserCharacter{}, domain.NewErrorf(domain.ErrInvalidJSON, err, "%s", err.Error())
	}
	return domain.UserCharacter{
		Name:       string(g.Name),
		Title:      string(g.Title),
		Class:      string(g.Class),
		Background: string(g.Background),
	}, nil
}

// ParseCompanions extracts the companion list from model output. Ids are left
// empty; the caller numbers them.
func ParseCompanions(text string) ([]domain.Companion, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Companions []generatedCompanion `json:"companions"`
		AIPlayers  []generatedCompanion `json:"aiPlayers"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, domain.NewErrorf(domain.ErrInvalidJSON, err, "%s", err.Error())
	}
	list := payload.Companions
	if len(list) == 0 {
		list = payload.AIPlayers
	}

	out := make([]domain.Companion, 0, len(list))
	for _, g := range list {
		out = append(out, domain.Companion{
			Name:       string(g.Name),
			Title:      string(g.Title),
			Role:       string(g.Role),
			Background: string(g.Background),
		})
	}
	return out, nil
}
