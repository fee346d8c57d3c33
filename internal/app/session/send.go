package session

import (
	"context"
	"strings"
	"time"

	"github.com/PabloGalante/tavern-agent/internal/app/prompt"
	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// SendSetupMessage talks to the setup guide. Blank text is ignored and
// returns a nil turn. A failed call leaves only the user turn behind.
func (s *Session) SendSetupMessage(ctx context.Context, text string) (*domain.Turn, error) {
	return s.send(ctx, domain.PhaseOuter, text)
}

// SendMessage talks to the game master. A failed call appends a system turn
// carrying the error text before returning it.
func (s *Session) SendMessage(ctx context.Context, text string) (*domain.Turn, error) {
	return s.send(ctx, domain.PhaseInner, text)
}

func (s *Session) send(ctx context.Context, phase domain.Phase, text string) (*domain.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	log := s.logger(ctx).With("phase", phase)

	s.mu.Lock()
	gw := s.gateway
	if gw == nil {
		s.mu.Unlock()
		return nil, domain.ErrGatewayNotConfigured
	}
	if *s.busy(phase) {
		s.mu.Unlock()
		return nil, domain.ErrBusy
	}

	user := domain.Turn{Role: domain.RoleUser, Content: text, At: s.now()}
	var system string
	if phase == domain.PhaseInner {
		user.Sender = prompt.DisplayName(s.setup)
		system = s.dmPrompt
		if system == "" {
			system = prompt.DefaultGameMasterPrompt
		}
	} else {
		system = prompt.RenderGuidancePrompt(s.setup)
	}
	h := s.history(phase)
	*h = append(*h, user)
	*s.busy(phase) = true
	prior := domain.LastMessages(*h, ContextWindow)
	s.mu.Unlock()
	defer s.release(phase)

	log.Info("sending message", "prior_turns", len(prior))
	start := time.Now()

	reply, err := gw.Converse(ctx, domain.ConverseInput{
		SystemPrompt: system,
		Prior:        prior,
		Input:        text,
	})
	if err != nil {
		log.Error("completion failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if phase == domain.PhaseInner {
			s.appendError(phase, err.Error())
		}
		return nil, err
	}

	turn := domain.Turn{Role: domain.RoleAssistant, Content: reply, At: s.now()}
	if phase == domain.PhaseInner {
		turn.Sender = GameMasterSender
	}
	s.appendTurn(phase, turn)

	if phase == domain.PhaseInner {
		s.record(ctx, domain.EventAction, text, reply)
	}
	log.Info("message answered", "elapsed_ms", time.Since(start).Milliseconds())
	return &turn, nil
}

// GenerateUserCharacter asks the guide for a player character and stores it
// in the setup on success.
func (s *Session) GenerateUserCharacter(ctx context.Context) (domain.UserCharacter, error) {
	s.mu.Lock()
	gw, err := s.admitSetupCall()
	if err != nil {
		s.mu.Unlock()
		return domain.UserCharacter{}, err
	}
	in := domain.ConverseInput{
		SystemPrompt: prompt.RenderGuidancePrompt(s.setup),
		Input:        prompt.RenderCharacterGeneration(s.setup),
	}
	s.mu.Unlock()
	defer s.release(domain.PhaseOuter)

	log := s.logger(ctx)
	log.Info("generating user character")

	reply, err := gw.Converse(ctx, in)
	if err != nil {
		return domain.UserCharacter{}, s.generationFailed(ctx, "角色生成失败", err)
	}
	uc, err := prompt.ParseUserCharacter(reply)
	if err != nil {
		return domain.UserCharacter{}, s.generationFailed(ctx, "角色生成失败", err)
	}

	s.mu.Lock()
	s.setup.UserCharacter = uc
	s.mu.Unlock()

	log.Info("user character generated", "name", uc.Name)
	return uc, nil
}

// GenerateCompanions asks the guide for a full roster and replaces the
// current one with it, renumbered and fitted to the companion count.
func (s *Session) GenerateCompanions(ctx context.Context) ([]domain.Companion, error) {
	s.mu.Lock()
	gw, err := s.admitSetupCall()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	in := domain.ConverseInput{
		SystemPrompt: prompt.RenderGuidancePrompt(s.setup),
		Input:        prompt.RenderCompanionGeneration(s.setup),
	}
	s.mu.Unlock()
	defer s.release(domain.PhaseOuter)

	log := s.logger(ctx)
	log.Info("generating companions")

	reply, err := gw.Converse(ctx, in)
	if err != nil {
		return nil, s.generationFailed(ctx, "队友生成失败", err)
	}
	list, err := prompt.ParseCompanions(reply)
	if err != nil {
		return nil, s.generationFailed(ctx, "队友生成失败", err)
	}

	s.mu.Lock()
	s.setup.SetCompanions(list)
	out := append([]domain.Companion{}, s.setup.Companions...)
	s.mu.Unlock()

	log.Info("companions generated", "count", len(out))
	return out, nil
}

// admitSetupCall claims the setup slot. Callers hold mu.
func (s *Session) admitSetupCall() (domain.Gateway, error) {
	if s.gateway == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	if s.setupBusy {
		return nil, domain.ErrBusy
	}
	s.setupBusy = true
	return s.gateway, nil
}

func (s *Session) generationFailed(ctx context.Context, label string, err error) error {
	s.logger(ctx).Error("generation failed", "label", label, "error", err)
	s.appendError(domain.PhaseOuter, label+"："+err.Error())
	return err
}
