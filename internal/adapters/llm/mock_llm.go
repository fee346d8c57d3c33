package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// MockGateway answers without a network. It is meant for local runs: JSON
// generation requests get a canned object, everything else an echo.
type MockGateway struct {
	model string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{model: "mock"}
}

// NewMockGatewayFactory ignores the credential.
func NewMockGatewayFactory() domain.GatewayFactory {
	return func(string) (domain.Gateway, error) {
		return NewMockGateway(), nil
	}
}

func (m *MockGateway) Converse(_ context.Context, in domain.ConverseInput) (string, error) {
	switch {
	case strings.Contains(in.Input, `"companions"`):
		return "```json\n" + `{"companions":[{"name":"艾琳","title":"林地游侠","role":"斥候","background":"在边境长大的猎人"},{"name":"巴托","title":"铁壁","role":"坦克","background":"退役的城卫军"},{"name":"茜拉","title":"星语者","role":"治疗","background":"神殿出走的见习祭司"}]}` + "\n```", nil
	case strings.Contains(in.Input, "JSON"):
		return "```json\n" + `{"name":"洛恩","title":"流浪剑士","class":"战士","background":"失去故乡的佣兵"}` + "\n```", nil
	}
	return fmt.Sprintf("（模拟回复）我听到了：%q。故事继续向前推进……", in.Input), nil
}

func (m *MockGateway) UpdateCredential(string) {}

func (m *MockGateway) UpdateModel(model string) { m.model = model }
