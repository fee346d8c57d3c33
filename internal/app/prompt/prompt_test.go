package prompt_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/PabloGalante/tavern-agent/internal/app/prompt"
	"github.com/PabloGalante/tavern-agent/internal/domain"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr *domain.Error
	}{
		{name: "fenced json block", text: "noise ```json\n{\"a\":1}\n``` trailing", want: `{"a":1}`},
		{name: "unlabeled fence", text: "```\n{\"a\":2}\n```", want: `{"a":2}`},
		{name: "bare object with commentary", text: "好的，这是结果：{\"a\":3} 希望你喜欢", want: `{"a":3}`},
		{name: "no braces", text: "no braces here", wantErr: domain.ErrNoJSONFound},
		{name: "unterminated", text: `{"a":1`, wantErr: domain.ErrInvalidJSON},
		{name: "stray braces", text: `{"a":1} and {oops}`, wantErr: domain.ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := prompt.ExtractJSONObject(tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want kind %s", err, tt.wantErr.Kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got, want any
			_ = json.Unmarshal(raw, &got)
			_ = json.Unmarshal([]byte(tt.want), &want)
			gb, _ := json.Marshal(got)
			wb, _ := json.Marshal(want)
			if string(gb) != string(wb) {
				t.Fatalf("got %s, want %s", raw, tt.want)
			}
		})
	}
}

func TestRenderSetupSummaryDefaults(t *testing.T) {
	got := prompt.RenderSetupSummary(domain.DefaultSetup())
	want := strings.Join([]string{
		"规则系统：未填写",
		"用户身份：玩家（PL）",
		"模组/世界观：未填写",
		"AI 叙事风格：未填写",
		"资源：未填写",
		"世界备注：未填写",
		"玩家角色名：未填写",
		"玩家角色称号：未填写",
		"玩家角色职业：未填写",
		"玩家角色背景：未填写",
		"AI 队友数量：0",
		"AI 队友：无",
	}, "\n")
	if got != want {
		t.Fatalf("summary mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderSetupSummaryRoster(t *testing.T) {
	setup := domain.DefaultSetup()
	setup.RuleSystem = "D&D 5E"
	setup.SetCompanionCount(2)
	setup.Companions[0].Title = "游侠"
	setup.Companions[0].Role = "斥候"

	got := prompt.RenderSetupSummary(setup)
	if !strings.Contains(got, "规则系统：D&D 5E") {
		t.Fatalf("missing rule system:\n%s", got)
	}
	if !strings.Contains(got, "AI 队友：AI队友1·游侠 - 斥候；AI队友2·未填写 - 未填写") {
		t.Fatalf("unexpected roster line:\n%s", got)
	}
}

func TestRenderGuidancePromptEmbedsSummary(t *testing.T) {
	setup := domain.DefaultSetup()
	got := prompt.RenderGuidancePrompt(setup)
	if !strings.HasSuffix(got, prompt.RenderSetupSummary(setup)) {
		t.Fatal("guidance prompt must end with the setup summary")
	}
}

func TestRenderGameMasterPromptDefaults(t *testing.T) {
	got := prompt.RenderGameMasterPrompt(domain.DefaultSetup())
	for _, want := range []string{"自定义世界", "通用规则", "沉浸式叙事", "无 AI 队友", "玩家（PL）"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, "{{") {
		t.Fatalf("unreplaced placeholder:\n%s", got)
	}
}

func TestRenderGameMasterPromptRoster(t *testing.T) {
	setup := domain.DefaultSetup()
	setup.UserRole = domain.UserRoleDM
	setup.UserCharacter.Name = "洛恩"
	setup.SetCompanionCount(2)
	setup.SetCompanions([]domain.Companion{
		{Name: "艾琳", Title: "林地游侠", Role: "斥候"},
		{Name: "巴托", Title: "铁壁", Role: "坦克"},
	})

	got := prompt.RenderGameMasterPrompt(setup)
	if !strings.Contains(got, "艾琳·林地游侠 - 斥候，巴托·铁壁 - 坦克") {
		t.Fatalf("roster not comma-joined:\n%s", got)
	}
	if !strings.Contains(got, "洛恩（身份：主持人（DM））") {
		t.Fatalf("user line missing:\n%s", got)
	}
}

func TestRenderCompanionPrompt(t *testing.T) {
	setup := domain.DefaultSetup()
	setup.ModuleWorld = "被遗忘的国度"
	c := domain.Companion{ID: "ai-1", Name: "艾琳", Title: "林地游侠", Role: "斥候", Background: "边境猎人"}

	got := prompt.RenderCompanionPrompt(setup, c)
	for _, want := range []string{"被遗忘的国度", "艾琳·林地游侠", "斥候", "边境猎人", "玩家"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, "{{") {
		t.Fatalf("unreplaced placeholder:\n%s", got)
	}
}

func TestParseUserCharacterDefaultsMissingFields(t *testing.T) {
	uc, err := prompt.ParseUserCharacter("```json\n{\"name\":\"洛恩\",\"class\":7}\n```")
	if err != nil {
		t.Fatalf("ParseUserCharacter: %v", err)
	}
	if uc.Name != "洛恩" || uc.Class != "7" || uc.Title != "" || uc.Background != "" {
		t.Fatalf("unexpected character: %+v", uc)
	}
}

func TestParseCompanions(t *testing.T) {
	list, err := prompt.ParseCompanions(`这是队伍：{"companions":[{"id":"x","name":"艾琳"},{"name":"巴托","role":null}]}`)
	if err != nil {
		t.Fatalf("ParseCompanions: %v", err)
	}
	if len(list) != 2 || list[0].Name != "艾琳" || list[1].Role != "" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[0].ID != "" {
		t.Fatalf("model ids must be dropped, got %q", list[0].ID)
	}
}
