package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// RenderSetupSummary lists every setup field in a fixed order, one per line.
// Changing the order changes every guidance prompt.
func RenderSetupSummary(setup domain.SetupAggregate) string {
	uc := setup.UserCharacter
	lines := []string{
		"规则系统：" + orDefault(setup.RuleSystem, notFilled),
		"用户身份：" + userRoleLabel(setup.UserRole),
		"模组/世界观：" + orDefault(setup.ModuleWorld, notFilled),
		"AI 叙事风格：" + orDefault(setup.AIStyle, notFilled),
		"资源：" + orDefault(setup.Resources, notFilled),
		"世界备注：" + orDefault(setup.WorldNotes, notFilled),
		"玩家角色名：" + orDefault(uc.Name, notFilled),
		"玩家角色称号：" + orDefault(uc.Title, notFilled),
		"玩家角色职业：" + orDefault(uc.Class, notFilled),
		"玩家角色背景：" + orDefault(uc.Background, notFilled),
		"AI 队友数量：" + strconv.Itoa(setup.CompanionCount),
		"AI 队友：" + roster(setup.Companions, "；", noCompanions),
	}
	return strings.Join(lines, "\n")
}

// RenderGuidancePrompt is the system prompt of the setup phase.
func RenderGuidancePrompt(setup domain.SetupAggregate) string {
	return guidanceTemplate + "\n" + RenderSetupSummary(setup)
}

// RenderGameMasterPrompt is the system prompt of the play phase.
func RenderGameMasterPrompt(setup domain.SetupAggregate) string {
	return strings.NewReplacer(
		"{{rule_system}}", orDefault(setup.RuleSystem, defaultRules),
		"{{world}}", orDefault(setup.ModuleWorld, defaultWorld),
		"{{style}}", orDefault(setup.AIStyle, defaultStyle),
		"{{resources}}", orDefault(setup.Resources, defaultNone),
		"{{world_notes}}", orDefault(setup.WorldNotes, defaultNone),
		"{{user_name}}", DisplayName(setup),
		"{{user_role}}", userRoleLabel(setup.UserRole),
		"{{roster}}", roster(setup.Companions, "，", noRosterGM),
	).Replace(gameMasterTemplate)
}

// RenderCompanionPrompt is the system prompt of one companion.
func RenderCompanionPrompt(setup domain.SetupAggregate, c domain.Companion) string {
	return strings.NewReplacer(
		"{{world}}", orDefault(setup.ModuleWorld, defaultWorld),
		"{{style}}", orDefault(setup.AIStyle, defaultStyle),
		"{{name}}", orDefault(c.Name, defaultCompanionName),
		"{{title}}", orDefault(c.Title, defaultCompanionTitle),
		"{{role}}", orDefault(c.Role, defaultCompanionRole),
		"{{background}}", orDefault(c.Background, defaultCompanionBackground),
		"{{user_name}}", DisplayName(setup),
	).Replace(companionTemplate)
}

// RenderCharacterGeneration asks for the user's character as JSON.
func RenderCharacterGeneration(setup domain.SetupAggregate) string {
	return fmt.Sprintf(characterGenerationTemplate, RenderSetupSummary(setup))
}

// RenderCompanionGeneration asks for the companion roster as JSON.
func RenderCompanionGeneration(setup domain.SetupAggregate) string {
	return fmt.Sprintf(companionGenerationTemplate, setup.CompanionCount, RenderSetupSummary(setup))
}

// DisplayName is how the user appears in prompts and play transcripts.
func DisplayName(setup domain.SetupAggregate) string {
	return orDefault(setup.UserCharacter.Name, defaultPlayer)
}

func roster(companions []domain.Companion, sep, empty string) string {
	if len(companions) == 0 {
		return empty
	}
	parts := make([]string, 0, len(companions))
	for _, c := range companions {
		parts = append(parts, fmt.Sprintf("%s·%s - %s",
			orDefault(c.Name, notFilled),
			orDefault(c.Title, notFilled),
			orDefault(c.Role, notFilled)))
	}
	return strings.Join(parts, sep)
}

func userRoleLabel(r domain.UserRole) string {
	if r == domain.UserRoleDM {
		return "主持人（DM）"
	}
	return "玩家（PL）"
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
