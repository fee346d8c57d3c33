package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/PabloGalante/tavern-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/tavern-agent/internal/app/prompt"
	"github.com/PabloGalante/tavern-agent/internal/app/session"
	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// fakeGateway records every request and answers with reply.
type fakeGateway struct {
	mu         sync.Mutex
	calls      []domain.ConverseInput
	reply      func(in domain.ConverseInput) (string, error)
	credential string
	model      string
	block      chan struct{}
	started    chan struct{}
}

func (g *fakeGateway) Converse(ctx context.Context, in domain.ConverseInput) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, in)
	g.mu.Unlock()
	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.block != nil {
		<-g.block
	}
	if g.reply == nil {
		return "好的", nil
	}
	return g.reply(in)
}

func (g *fakeGateway) UpdateCredential(c string) { g.credential = c }
func (g *fakeGateway) UpdateModel(m string)      { g.model = m }

func (g *fakeGateway) lastCall(t *testing.T) domain.ConverseInput {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) == 0 {
		t.Fatal("gateway was not called")
	}
	return g.calls[len(g.calls)-1]
}

func newSession(t *testing.T, gw *fakeGateway, credential string) (*session.Session, *memory.KVStore, *memory.ChronicleStore) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewKVStore()
	if credential != "" {
		_ = store.Set(ctx, session.CredentialKey, credential)
	}
	chron := memory.NewChronicleStore()
	s, err := session.New(ctx, session.Options{
		Store:      store,
		NewGateway: func(c string) (domain.Gateway, error) { gw.credential = c; return gw, nil },
		Chronicle:  chron,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, store, chron
}

func TestNewLoadsStoredCredential(t *testing.T) {
	gw := &fakeGateway{}
	s, _, _ := newSession(t, gw, "sk-stored")

	if !s.Snapshot().HasCredential {
		t.Fatal("expected a gateway from the stored credential")
	}
	if gw.credential != "sk-stored" {
		t.Fatalf("factory got %q", gw.credential)
	}
	if s.Snapshot().Phase != domain.PhaseOuter {
		t.Fatal("new sessions start in the outer phase")
	}
}

func TestSendWithoutCredentialAppendsNothing(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t, &fakeGateway{}, "")

	if _, err := s.SendSetupMessage(ctx, "你好"); !errors.Is(err, domain.ErrGatewayNotConfigured) {
		t.Fatalf("SendSetupMessage err = %v", err)
	}
	if _, err := s.SendMessage(ctx, "你好"); !errors.Is(err, domain.ErrGatewayNotConfigured) {
		t.Fatalf("SendMessage err = %v", err)
	}
	snap := s.Snapshot()
	if len(snap.SetupHistory) != 0 || len(snap.PlayHistory) != 0 {
		t.Fatalf("histories must stay empty: %d %d", len(snap.SetupHistory), len(snap.PlayHistory))
	}
}

func TestSetCredentialPersistsAndClears(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newSession(t, &fakeGateway{}, "")

	if err := s.SetCredential(ctx, " sk-new "); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if v, _, _ := store.Get(ctx, session.CredentialKey); v != "sk-new" {
		t.Fatalf("stored credential = %q", v)
	}
	if !s.Snapshot().HasCredential {
		t.Fatal("expected gateway after SetCredential")
	}

	if err := s.SetCredential(ctx, ""); err != nil {
		t.Fatalf("SetCredential empty: %v", err)
	}
	if s.Snapshot().HasCredential {
		t.Fatal("empty credential must drop the gateway")
	}
	if err := s.UpdateModel("gpt-4"); !errors.Is(err, domain.ErrGatewayNotConfigured) {
		t.Fatalf("UpdateModel err = %v", err)
	}
}

func TestBlankInputIsIgnored(t *testing.T) {
	gw := &fakeGateway{}
	s, _, _ := newSession(t, gw, "sk")

	turn, err := s.SendSetupMessage(context.Background(), "   ")
	if err != nil || turn != nil {
		t.Fatalf("blank input: turn=%v err=%v", turn, err)
	}
	if len(gw.calls) != 0 || len(s.Snapshot().SetupHistory) != 0 {
		t.Fatal("blank input must not reach the gateway or the history")
	}
}

func TestSendSetupMessageUsesGuidancePrompt(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	s, _, _ := newSession(t, gw, "sk")
	s.UpdateSetup(session.SetupFields{RuleSystem: "D&D 5E", ModuleWorld: "被遗忘的国度"})

	turn, err := s.SendSetupMessage(ctx, "帮我想个开场")
	if err != nil {
		t.Fatalf("SendSetupMessage: %v", err)
	}
	if turn.Role != domain.RoleAssistant || turn.Content != "好的" {
		t.Fatalf("unexpected turn: %+v", turn)
	}

	call := gw.lastCall(t)
	if call.SystemPrompt != prompt.RenderGuidancePrompt(s.Snapshot().Setup) {
		t.Fatal("setup messages must use the guidance prompt of the current setup")
	}
	if !strings.Contains(call.SystemPrompt, "规则系统：D&D 5E") {
		t.Fatalf("summary missing from system prompt: %q", call.SystemPrompt)
	}
	if call.Input != "帮我想个开场" {
		t.Fatalf("input = %q", call.Input)
	}
	if len(call.Prior) != 1 || call.Prior[0].Role != domain.RoleUser {
		t.Fatalf("prior = %+v", call.Prior)
	}
	if got := len(s.Snapshot().SetupHistory); got != 2 {
		t.Fatalf("setup history has %d turns, want 2", got)
	}
}

func TestSetupFailureKeepsOnlyUserTurn(t *testing.T) {
	gw := &fakeGateway{reply: func(domain.ConverseInput) (string, error) { return "", domain.ErrRateLimited }}
	s, _, _ := newSession(t, gw, "sk")

	if _, err := s.SendSetupMessage(context.Background(), "hi"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v", err)
	}
	h := s.Snapshot().SetupHistory
	if len(h) != 1 || h[0].Role != domain.RoleUser {
		t.Fatalf("setup history = %+v", h)
	}
	if s.Snapshot().SetupBusy {
		t.Fatal("busy flag must be cleared after failure")
	}
}

func TestPlayFailureAppendsSystemTurn(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	s, _, _ := newSession(t, gw, "sk")
	if err := s.EnterInnerGame(ctx); err != nil {
		t.Fatalf("EnterInnerGame: %v", err)
	}

	gw.reply = func(domain.ConverseInput) (string, error) { return "", domain.ErrInvalidCredential }
	if _, err := s.SendMessage(ctx, "我拔剑"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("err = %v", err)
	}

	h := s.Snapshot().PlayHistory
	last := h[len(h)-1]
	if last.Role != domain.RoleSystem || last.Content != domain.ErrInvalidCredential.Message {
		t.Fatalf("last turn = %+v", last)
	}
	if h[len(h)-2].Role != domain.RoleUser {
		t.Fatal("user turn must precede the error turn")
	}
}

func TestEnterInnerGameFreezesPrompts(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{reply: func(domain.ConverseInput) (string, error) { return "夜幕降临。", nil }}
	s, _, chron := newSession(t, gw, "sk")
	s.UpdateCompanionCount(2)
	s.UpdateSetup(session.SetupFields{RuleSystem: "COC"})

	if err := s.EnterInnerGame(ctx); err != nil {
		t.Fatalf("EnterInnerGame: %v", err)
	}
	snap := s.Snapshot()
	if snap.Phase != domain.PhaseInner {
		t.Fatal("expected inner phase")
	}
	if len(snap.PlayHistory) != 1 {
		t.Fatalf("play history has %d turns, want 1", len(snap.PlayHistory))
	}
	opening := snap.PlayHistory[0]
	if opening.Role != domain.RoleAssistant || opening.Sender != session.GameMasterSender || opening.Content != "夜幕降临。" {
		t.Fatalf("opening = %+v", opening)
	}
	if gw.lastCall(t).Input != prompt.OpeningInstruction {
		t.Fatal("opening must use the opening instruction")
	}
	if len(snap.CompanionPrompts) != 2 || snap.CompanionPrompts["ai-1"] == "" {
		t.Fatalf("companion prompts = %v", snap.CompanionPrompts)
	}
	frozen := snap.DMPrompt

	s.UpdateSetup(session.SetupFields{RuleSystem: "D&D"})
	if _, err := s.SendMessage(ctx, "我点燃火把"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gw.lastCall(t).SystemPrompt != frozen {
		t.Fatal("setup edits must not change the frozen game master prompt")
	}
	if s.Snapshot().DMPrompt != frozen {
		t.Fatal("frozen prompt changed")
	}

	// Entering again while in game is a no-op.
	calls := len(gw.calls)
	if err := s.EnterInnerGame(ctx); err != nil || len(gw.calls) != calls {
		t.Fatalf("re-enter: err=%v calls=%d", err, len(gw.calls))
	}

	events, _ := chron.ListEvents(ctx, s.ID(), 0)
	if len(events) != 2 || events[0].Type != domain.EventDialogue || events[1].Type != domain.EventAction {
		t.Fatalf("events = %+v", events)
	}
}

func TestPlayTurnsCarrySenderNames(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t, &fakeGateway{}, "sk")
	s.UpdateSetup(session.SetupFields{UserCharacter: domain.UserCharacter{Name: "洛恩"}})
	_ = s.EnterInnerGame(ctx)

	if _, err := s.SendMessage(ctx, "前进"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	h := s.Snapshot().PlayHistory
	if h[1].Sender != "洛恩" || h[2].Sender != session.GameMasterSender {
		t.Fatalf("senders = %q %q", h[1].Sender, h[2].Sender)
	}
}

func TestContextWindowIsTenTurns(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	s, _, _ := newSession(t, gw, "sk")
	_ = s.EnterInnerGame(ctx)

	// opening plus seven exchanges gives fifteen turns.
	for i := 0; i < 7; i++ {
		if _, err := s.SendMessage(ctx, "继续"); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
	if got := len(s.Snapshot().PlayHistory); got != 15 {
		t.Fatalf("play history has %d turns, want 15", got)
	}

	if _, err := s.SendMessage(ctx, "最后一步"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	call := gw.lastCall(t)
	if len(call.Prior) != session.ContextWindow {
		t.Fatalf("prior has %d messages, want %d", len(call.Prior), session.ContextWindow)
	}
	if call.Prior[len(call.Prior)-1].Content != "最后一步" {
		t.Fatal("the window must end with the newest user turn")
	}
}

func TestBusyGuardRejectsSecondCall(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s, _, _ := newSession(t, gw, "sk")

	done := make(chan error, 1)
	go func() {
		_, err := s.SendSetupMessage(ctx, "第一条")
		done <- err
	}()
	<-gw.started

	if !s.Snapshot().SetupBusy {
		t.Fatal("expected setup busy while a call is in flight")
	}
	if _, err := s.SendSetupMessage(ctx, "第二条"); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("second call err = %v", err)
	}
	if _, err := s.GenerateUserCharacter(ctx); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("generation while busy err = %v", err)
	}

	close(gw.block)
	if err := <-done; err != nil {
		t.Fatalf("first call: %v", err)
	}
	if s.Snapshot().SetupBusy {
		t.Fatal("busy flag must be cleared")
	}
	if got := len(s.Snapshot().SetupHistory); got != 2 {
		t.Fatalf("setup history has %d turns, want 2", got)
	}
}

func TestBusyFlagsArePerPhase(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	gw := &fakeGateway{reply: func(in domain.ConverseInput) (string, error) {
		if in.Input == "慢" {
			started <- struct{}{}
			<-release
		}
		return "好的", nil
	}}
	s, _, _ := newSession(t, gw, "sk")
	if err := s.EnterInnerGame(ctx); err != nil {
		t.Fatalf("EnterInnerGame: %v", err)
	}

	cases := []struct {
		name    string
		blocked func(context.Context, string) (*domain.Turn, error)
		other   func(context.Context, string) (*domain.Turn, error)
	}{
		{"setup in flight", s.SendSetupMessage, s.SendMessage},
		{"play in flight", s.SendMessage, s.SendSetupMessage},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			release = make(chan struct{})
			done := make(chan error, 1)
			go func() {
				_, err := c.blocked(ctx, "慢")
				done <- err
			}()
			<-started

			turn, err := c.other(ctx, "快")
			if err != nil || turn == nil || turn.Content != "好的" {
				t.Fatalf("other phase: turn=%v err=%v", turn, err)
			}

			close(release)
			if err := <-done; err != nil {
				t.Fatalf("blocked call: %v", err)
			}
		})
	}

	snap := s.Snapshot()
	if snap.SetupBusy || snap.PlayBusy {
		t.Fatal("busy flags must be cleared")
	}
}

func TestGenerateCompanionsFitsCountAndRenumbers(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{reply: func(domain.ConverseInput) (string, error) {
		return "```json\n{\"companions\":[{\"id\":\"x\",\"name\":\"艾琳\"},{\"name\":\"巴托\"},{\"name\":\"多余\"}]}\n```", nil
	}}
	s, _, _ := newSession(t, gw, "sk")
	s.UpdateCompanionCount(2)

	list, err := s.GenerateCompanions(ctx)
	if err != nil {
		t.Fatalf("GenerateCompanions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "ai-1" || list[1].ID != "ai-2" || list[0].Name != "艾琳" {
		t.Fatalf("companions = %+v", list)
	}
	if !strings.Contains(gw.lastCall(t).Input, "2") {
		t.Fatal("generation request must carry the companion count")
	}
	setup := s.Snapshot().Setup
	if setup.CompanionCount != 2 || len(setup.Companions) != 2 {
		t.Fatalf("setup roster = %d/%d", setup.CompanionCount, len(setup.Companions))
	}
}

func TestGenerateUserCharacter(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{reply: func(domain.ConverseInput) (string, error) {
		return `好的：{"name":"洛恩","title":"流浪者","class":"游侠","background":"北境出身"}`, nil
	}}
	s, _, _ := newSession(t, gw, "sk")

	uc, err := s.GenerateUserCharacter(ctx)
	if err != nil {
		t.Fatalf("GenerateUserCharacter: %v", err)
	}
	if uc.Name != "洛恩" || s.Snapshot().Setup.UserCharacter.Class != "游侠" {
		t.Fatalf("character = %+v", uc)
	}
}

func TestGenerationParseFailureLeavesSetupUnchanged(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{reply: func(domain.ConverseInput) (string, error) { return "抱歉，我做不到。", nil }}
	s, _, _ := newSession(t, gw, "sk")
	s.UpdateCompanionCount(1)
	before := s.Snapshot().Setup

	if _, err := s.GenerateCompanions(ctx); !errors.Is(err, domain.ErrNoJSONFound) {
		t.Fatalf("err = %v", err)
	}
	snap := s.Snapshot()
	if snap.Setup.Companions[0] != before.Companions[0] {
		t.Fatal("roster must be unchanged after a parse failure")
	}
	h := snap.SetupHistory
	if len(h) != 1 || h[0].Role != domain.RoleSystem || !strings.Contains(h[0].Content, domain.ErrNoJSONFound.Message) {
		t.Fatalf("setup history = %+v", h)
	}
}

func TestExitAndResumeKeepState(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t, &fakeGateway{}, "sk")

	if s.ResumeInnerGame() {
		t.Fatal("nothing to resume before the first game")
	}
	_ = s.EnterInnerGame(ctx)
	before := s.Snapshot()

	s.ExitToOuter()
	s.UpdateSetup(session.SetupFields{RuleSystem: "新规则"})
	if !s.ResumeInnerGame() {
		t.Fatal("expected resume to succeed")
	}
	after := s.Snapshot()
	if after.Phase != domain.PhaseInner || after.DMPrompt != before.DMPrompt || len(after.PlayHistory) != len(before.PlayHistory) {
		t.Fatal("exit and resume must keep transcripts and frozen prompts")
	}
}

func TestStartNewGame(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	s, _, _ := newSession(t, gw, "sk")
	_ = s.EnterInnerGame(ctx)
	_, _ = s.SendMessage(ctx, "前进")

	if err := s.StartNewGame(ctx); err != nil {
		t.Fatalf("StartNewGame: %v", err)
	}
	h := s.Snapshot().PlayHistory
	if len(h) != 1 || h[0].Sender != session.GameMasterSender {
		t.Fatalf("play history = %+v", h)
	}
	if gw.lastCall(t).SystemPrompt != s.Snapshot().DMPrompt {
		t.Fatal("new game must reuse the frozen prompt")
	}

	_ = s.SetCredential(ctx, "")
	if err := s.StartNewGame(ctx); err != nil {
		t.Fatalf("StartNewGame without gateway: %v", err)
	}
	h = s.Snapshot().PlayHistory
	if len(h) != 1 || h[0].Content != prompt.Greeting {
		t.Fatalf("expected greeting, got %+v", h)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t, &fakeGateway{}, "sk")
	_ = s.EnterInnerGame(ctx)
	s.SetCharacterCard(&domain.CharacterCard{Name: "洛恩", Level: 3})

	s.ClearAll()
	snap := s.Snapshot()
	if len(snap.PlayHistory) != 0 || snap.CharacterCard != nil {
		t.Fatal("ClearAll must empty play history and drop the card")
	}
	if snap.Phase != domain.PhaseInner {
		t.Fatal("ClearAll does not change the phase")
	}
}

func TestCompanionsAct(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	s, _, _ := newSession(t, gw, "sk")

	if _, err := s.CompanionsAct(ctx); !errors.Is(err, domain.ErrNotInGame) {
		t.Fatalf("outside game err = %v", err)
	}

	s.UpdateCompanionCount(2)
	_ = s.EnterInnerGame(ctx)
	prompts := s.Snapshot().CompanionPrompts

	turns, err := s.CompanionsAct(ctx)
	if err != nil {
		t.Fatalf("CompanionsAct: %v", err)
	}
	if len(turns) != 2 || turns[0].Sender != "AI队友1" || turns[1].Sender != "AI队友2" {
		t.Fatalf("turns = %+v", turns)
	}
	if gw.lastCall(t).SystemPrompt != prompts["ai-2"] || gw.lastCall(t).Input != prompt.CompanionTurnInstruction {
		t.Fatal("companions must use their frozen prompts")
	}
	if got := len(s.Snapshot().PlayHistory); got != 3 {
		t.Fatalf("play history has %d turns, want 3", got)
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := session.NewRegistry(session.Options{
		Store:      memory.NewKVStore(),
		NewGateway: func(string) (domain.Gateway, error) { return &fakeGateway{}, nil },
	})

	s, err := reg.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := reg.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get: %v", err)
	}
	if _, err := reg.Get("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get missing err = %v", err)
	}
}
