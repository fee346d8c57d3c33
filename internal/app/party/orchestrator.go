package party

import (
	"context"
	"time"

	"github.com/PabloGalante/tavern-agent/internal/app/prompt"
	"github.com/PabloGalante/tavern-agent/internal/domain"
	"github.com/PabloGalante/tavern-agent/internal/observability"
)

// Table is the shared play transcript the party acts on.
type Table interface {
	Recent(n int) []domain.ChatMessage
	Append(turn domain.Turn)
}

// Member is one companion taking part in a round.
type Member struct {
	ID           string
	Name         string
	SystemPrompt string
}

// Orchestrator lets each companion act in roster order. Every companion sees
// the turns appended by the ones before it.
type Orchestrator struct {
	gateway domain.Gateway
	window  int
	now     func() time.Time
}

func NewOrchestrator(gateway domain.Gateway, window int) *Orchestrator {
	return &Orchestrator{
		gateway: gateway,
		window:  window,
		now:     time.Now,
	}
}

// Run plays one round. It stops at the first failure and returns the turns
// appended so far together with the error.
func (o *Orchestrator) Run(ctx context.Context, members []Member, table Table) ([]domain.Turn, error) {
	log := observability.LoggerFromContext(ctx)
	log.Info("party round started", "members", len(members))

	turns := make([]domain.Turn, 0, len(members))
	for _, m := range members {
		start := time.Now()
		log.Info("companion turn start", "companion_id", m.ID)

		reply, err := o.gateway.Converse(ctx, domain.ConverseInput{
			SystemPrompt: m.SystemPrompt,
			Prior:        table.Recent(o.window),
			Input:        prompt.CompanionTurnInstruction,
		})
		if err != nil {
			log.Error("companion turn failed", "companion_id", m.ID, "error", err)
			return turns, err
		}

		turn := domain.Turn{
			Role:    domain.RoleAssistant,
			Content: reply,
			Sender:  m.Name,
			At:      o.now(),
		}
		table.Append(turn)
		turns = append(turns, turn)

		log.Info("companion turn end", "companion_id", m.ID, "elapsed_ms", time.Since(start).Milliseconds())
	}

	log.Info("party round end")
	return turns, nil
}
