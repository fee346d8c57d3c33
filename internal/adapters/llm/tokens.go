package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// TokenEstimator gives a rough prompt size for logs. It does not gate requests.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator loads the cl100k_base encoding. The first call may fetch
// the BPE ranks over the network.
func NewTokenEstimator() (*TokenEstimator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base encoding: %w", err)
	}
	return &TokenEstimator{enc: enc}, nil
}

// Count estimates the prompt tokens of msgs, including per-message framing.
// A nil estimator counts zero.
func (e *TokenEstimator) Count(msgs []domain.ChatMessage) int {
	if e == nil || e.enc == nil {
		return 0
	}
	tokens := 3
	for _, m := range msgs {
		tokens += 4
		tokens += len(e.enc.Encode(string(m.Role), nil, nil))
		tokens += len(e.enc.Encode(m.Content, nil, nil))
	}
	return tokens
}
