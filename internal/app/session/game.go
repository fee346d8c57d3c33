package session

import (
	"context"
	"time"

	"github.com/PabloGalante/tavern-agent/internal/app/party"
	"github.com/PabloGalante/tavern-agent/internal/app/prompt"
	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// EnterInnerGame freezes the game master and companion prompts from the
// current setup, starts an empty play transcript and asks for the opening
// narration. Calling it while already in game does nothing.
//
// Without a gateway the phase still switches and no opening is requested.
func (s *Session) EnterInnerGame(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == domain.PhaseInner {
		s.mu.Unlock()
		return nil
	}
	if s.playBusy {
		s.mu.Unlock()
		return domain.ErrBusy
	}

	s.dmPrompt = prompt.RenderGameMasterPrompt(s.setup)
	s.roster = append([]domain.Companion{}, s.setup.Companions...)
	s.companionPrompts = make(map[string]string, len(s.roster))
	for _, c := range s.roster {
		s.companionPrompts[c.ID] = prompt.RenderCompanionPrompt(s.setup, c)
	}
	s.playHistory = []domain.Turn{}
	s.phase = domain.PhaseInner

	gw := s.gateway
	system := s.dmPrompt
	if gw == nil {
		s.mu.Unlock()
		s.logger(ctx).Info("entered game without gateway")
		return nil
	}
	s.playBusy = true
	s.mu.Unlock()
	defer s.release(domain.PhaseInner)

	s.logger(ctx).Info("entering game", "companions", len(s.companionPrompts))
	return s.opening(ctx, gw, system)
}

// ResumeInnerGame returns to a game left with ExitToOuter. Prompts frozen at
// entry are kept. It reports false when no game was ever entered.
func (s *Session) ResumeInnerGame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dmPrompt == "" {
		return false
	}
	s.phase = domain.PhaseInner
	return true
}

// ExitToOuter flips the phase back to setup. Transcripts and frozen prompts
// are kept.
func (s *Session) ExitToOuter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = domain.PhaseOuter
}

// StartNewGame wipes the play transcript and requests a fresh opening with
// the frozen game master prompt. Without a gateway the greeting is written
// instead.
func (s *Session) StartNewGame(ctx context.Context) error {
	s.mu.Lock()
	if s.playBusy {
		s.mu.Unlock()
		return domain.ErrBusy
	}
	s.playHistory = []domain.Turn{}

	gw := s.gateway
	if gw == nil {
		s.playHistory = append(s.playHistory, s.gameMasterTurn(prompt.Greeting))
		s.mu.Unlock()
		return nil
	}
	system := s.dmPrompt
	if system == "" {
		system = prompt.DefaultGameMasterPrompt
	}
	s.playBusy = true
	s.mu.Unlock()
	defer s.release(domain.PhaseInner)

	s.logger(ctx).Info("starting new game")
	return s.opening(ctx, gw, system)
}

// ClearAll empties the play transcript and drops the character card.
func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playHistory = []domain.Turn{}
	s.card = nil
}

// opening requests the opening narration. The caller holds the play slot.
func (s *Session) opening(ctx context.Context, gw domain.Gateway, system string) error {
	start := time.Now()
	reply, err := gw.Converse(ctx, domain.ConverseInput{
		SystemPrompt: system,
		Input:        prompt.OpeningInstruction,
	})
	if err != nil {
		s.logger(ctx).Error("opening failed", "error", err)
		s.appendError(domain.PhaseInner, err.Error())
		return err
	}

	s.appendTurn(domain.PhaseInner, s.gameMasterTurn(reply))
	s.record(ctx, domain.EventDialogue, reply, "")
	s.logger(ctx).Info("opening generated", "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// CompanionsAct lets every companion take one turn in roster order using the
// prompts frozen at game entry. On failure the turns written so far stay and
// a system turn records the error.
func (s *Session) CompanionsAct(ctx context.Context) ([]domain.Turn, error) {
	s.mu.Lock()
	gw := s.gateway
	if gw == nil {
		s.mu.Unlock()
		return nil, domain.ErrGatewayNotConfigured
	}
	if s.phase != domain.PhaseInner {
		s.mu.Unlock()
		return nil, domain.ErrNotInGame
	}
	if s.playBusy {
		s.mu.Unlock()
		return nil, domain.ErrBusy
	}

	members := make([]party.Member, 0, len(s.roster))
	for _, c := range s.roster {
		members = append(members, party.Member{ID: c.ID, Name: c.Name, SystemPrompt: s.companionPrompts[c.ID]})
	}
	if len(members) == 0 {
		s.mu.Unlock()
		return []domain.Turn{}, nil
	}
	s.playBusy = true
	s.mu.Unlock()
	defer s.release(domain.PhaseInner)

	orch := party.NewOrchestrator(gw, ContextWindow)
	turns, err := orch.Run(ctx, members, playTable{s})
	if err != nil {
		s.appendError(domain.PhaseInner, err.Error())
		return turns, err
	}
	for _, t := range turns {
		s.record(ctx, domain.EventAction, t.Content, t.Sender)
	}
	return turns, nil
}

// playTable exposes the play transcript to the party orchestrator.
type playTable struct{ s *Session }

func (t playTable) Recent(n int) []domain.ChatMessage {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return domain.LastMessages(t.s.playHistory, n)
}

func (t playTable) Append(turn domain.Turn) {
	t.s.appendTurn(domain.PhaseInner, turn)
}
