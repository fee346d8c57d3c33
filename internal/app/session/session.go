package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/tavern-agent/internal/domain"
	"github.com/PabloGalante/tavern-agent/internal/observability"
)

const (
	// CredentialKey is the KV key the API credential is stored under.
	CredentialKey = "apiKey"

	// ContextWindow is how many trailing turns are sent as prior context.
	ContextWindow = 10

	// GameMasterSender labels turns written by the game master.
	GameMasterSender = "DM"
)

// Options wires a session to its collaborators.
type Options struct {
	ID         domain.SessionID
	Store      domain.KVStore
	NewGateway domain.GatewayFactory
	Chronicle  domain.ChronicleStore // optional
	Now        func() time.Time
}

// Session is the two-phase state machine behind one tavern table. All state
// is guarded by mu; gateway calls run without holding it.
type Session struct {
	id         domain.SessionID
	store      domain.KVStore
	newGateway domain.GatewayFactory
	chronicle  domain.ChronicleStore
	now        func() time.Time

	mu               sync.Mutex
	phase            domain.Phase
	setup            domain.SetupAggregate
	setupHistory     []domain.Turn
	playHistory      []domain.Turn
	dmPrompt         string
	companionPrompts map[string]string
	roster           []domain.Companion // frozen with companionPrompts
	credential       string
	gateway          domain.Gateway
	setupBusy        bool
	playBusy         bool
	card             *domain.CharacterCard
}

// New builds a session in the outer phase. A stored credential, if any, is
// loaded and turned into a gateway.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Store == nil || opts.NewGateway == nil {
		return nil, errors.New("session: store and gateway factory are required")
	}
	if opts.ID == "" {
		opts.ID = domain.SessionID(uuid.NewString())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		id:               opts.ID,
		store:            opts.Store,
		newGateway:       opts.NewGateway,
		chronicle:        opts.Chronicle,
		now:              opts.Now,
		phase:            domain.PhaseOuter,
		setup:            domain.DefaultSetup(),
		setupHistory:     []domain.Turn{},
		playHistory:      []domain.Turn{},
		companionPrompts: map[string]string{},
	}

	credential, ok, err := s.store.Get(ctx, CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if ok && credential != "" {
		gw, err := s.newGateway(credential)
		if err != nil {
			return nil, fmt.Errorf("build gateway: %w", err)
		}
		s.credential = credential
		s.gateway = gw
	}

	s.logger(ctx).Info("session created", "has_credential", s.gateway != nil)
	return s, nil
}

func (s *Session) ID() domain.SessionID { return s.id }

// SetCredential stores key and rebuilds the gateway. An empty key leaves the
// session without a gateway.
func (s *Session) SetCredential(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if err := s.store.Set(ctx, CredentialKey, key); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	var gw domain.Gateway
	if key != "" {
		var err error
		if gw, err = s.newGateway(key); err != nil {
			return fmt.Errorf("build gateway: %w", err)
		}
	}

	s.mu.Lock()
	s.credential = key
	s.gateway = gw
	s.mu.Unlock()

	s.logger(ctx).Info("credential updated", "configured", gw != nil)
	return nil
}

// UpdateModel switches the model of the current gateway.
func (s *Session) UpdateModel(model string) error {
	s.mu.Lock()
	gw := s.gateway
	s.mu.Unlock()
	if gw == nil {
		return domain.ErrGatewayNotConfigured
	}
	gw.UpdateModel(model)
	return nil
}

// SetupFields are the user-editable setup values. The roster is edited
// through UpdateCompanionCount and UpdateCompanion.
type SetupFields struct {
	RuleSystem    string               `json:"rule_system"`
	UserRole      domain.UserRole      `json:"user_role"`
	ModuleWorld   string               `json:"module_world"`
	AIStyle       string               `json:"ai_style"`
	Resources     string               `json:"resources"`
	WorldNotes    string               `json:"world_notes"`
	UserCharacter domain.UserCharacter `json:"user_character"`
}

// UpdateSetup replaces the editable setup fields. The roster is untouched.
func (s *Session) UpdateSetup(f SetupFields) domain.SetupAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setup.RuleSystem = f.RuleSystem
	s.setup.UserRole = domain.ParseUserRole(string(f.UserRole))
	s.setup.ModuleWorld = f.ModuleWorld
	s.setup.AIStyle = f.AIStyle
	s.setup.Resources = f.Resources
	s.setup.WorldNotes = f.WorldNotes
	s.setup.UserCharacter = f.UserCharacter
	return s.setup.Clone()
}

// UpdateCompanionCount clamps n to [0, MaxCompanions] and resizes the roster.
func (s *Session) UpdateCompanionCount(n int) domain.SetupAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setup.SetCompanionCount(n)
	return s.setup.Clone()
}

// UpdateCompanion edits the companion with id in place. The id is kept.
func (s *Session) UpdateCompanion(id string, c domain.Companion) (domain.Companion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.setup.Companions {
		if s.setup.Companions[i].ID == id {
			c.ID = id
			s.setup.Companions[i] = c
			return c, nil
		}
	}
	return domain.Companion{}, domain.NewErrorf(domain.ErrNotFound, nil, "companion %s", id)
}

// SetCharacterCard stores card as is. nil clears it.
func (s *Session) SetCharacterCard(card *domain.CharacterCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.card = card
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	ID               domain.SessionID      `json:"id"`
	Phase            domain.Phase          `json:"phase"`
	Setup            domain.SetupAggregate `json:"setup"`
	SetupHistory     []domain.Turn         `json:"setup_history"`
	PlayHistory      []domain.Turn         `json:"play_history"`
	DMPrompt         string                `json:"dm_prompt,omitempty"`
	CompanionPrompts map[string]string     `json:"companion_prompts,omitempty"`
	HasCredential    bool                  `json:"has_credential"`
	SetupBusy        bool                  `json:"setup_busy"`
	PlayBusy         bool                  `json:"play_busy"`
	CharacterCard    *domain.CharacterCard `json:"character_card,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompts := make(map[string]string, len(s.companionPrompts))
	for k, v := range s.companionPrompts {
		prompts[k] = v
	}
	return Snapshot{
		ID:               s.id,
		Phase:            s.phase,
		Setup:            s.setup.Clone(),
		SetupHistory:     append([]domain.Turn{}, s.setupHistory...),
		PlayHistory:      append([]domain.Turn{}, s.playHistory...),
		DMPrompt:         s.dmPrompt,
		CompanionPrompts: prompts,
		HasCredential:    s.gateway != nil,
		SetupBusy:        s.setupBusy,
		PlayBusy:         s.playBusy,
		CharacterCard:    s.card,
	}
}

// history returns the transcript of phase. Callers hold mu.
func (s *Session) history(phase domain.Phase) *[]domain.Turn {
	if phase == domain.PhaseInner {
		return &s.playHistory
	}
	return &s.setupHistory
}

// busy returns the in-flight flag of phase. Callers hold mu.
func (s *Session) busy(phase domain.Phase) *bool {
	if phase == domain.PhaseInner {
		return &s.playBusy
	}
	return &s.setupBusy
}

func (s *Session) release(phase domain.Phase) {
	s.mu.Lock()
	*s.busy(phase) = false
	s.mu.Unlock()
}

func (s *Session) appendTurn(phase domain.Phase, turn domain.Turn) {
	s.mu.Lock()
	h := s.history(phase)
	*h = append(*h, turn)
	s.mu.Unlock()
}

func (s *Session) appendError(phase domain.Phase, text string) {
	s.appendTurn(phase, domain.Turn{
		Role:    domain.RoleSystem,
		Content: text,
		At:      s.now(),
	})
}

func (s *Session) gameMasterTurn(content string) domain.Turn {
	return domain.Turn{
		Role:    domain.RoleAssistant,
		Content: content,
		Sender:  GameMasterSender,
		At:      s.now(),
	}
}

// record writes a chronicle event. Failures are logged only.
func (s *Session) record(ctx context.Context, typ domain.EventType, content, detail string) {
	if s.chronicle == nil {
		return
	}
	ev := &domain.GameEvent{
		ID:        domain.EventID(uuid.NewString()),
		SessionID: s.id,
		At:        s.now(),
		Type:      typ,
		Content:   content,
		Context:   detail,
	}
	if err := s.chronicle.AppendEvent(ctx, ev); err != nil {
		s.logger(ctx).Warn("failed to record game event", "type", typ, "error", err)
	}
}

func (s *Session) logger(ctx context.Context) *slog.Logger {
	return observability.LoggerFromContext(ctx).With("session_id", s.id)
}
