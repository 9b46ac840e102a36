// Package knowledge queries the playbook index: the message is embedded and
// searched against pre-approved response scripts, with the classified intent
// as a filter hint.
package knowledge

import (
	"context"
	"fmt"
	"sort"

	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/intake/engine"
	"clinic_intake_backend/platform/ai/embeddings"
	"clinic_intake_backend/platform/logger"
	"clinic_intake_backend/platform/qdrant"
)

const searchLimit = 3

type Service struct {
	embedder *embeddings.Client
	index    *qdrant.Client
	log      *logger.Logger
}

func NewService(embedder *embeddings.Client, index *qdrant.Client, log *logger.Logger) *Service {
	return &Service{
		embedder: embedder,
		index:    index,
		log:      log,
	}
}

// Search returns playbook matches ranked by confidence. Errors surface to the
// engine, which treats any failure as "no match".
func (s *Service) Search(ctx context.Context, message string, intent domain.Intent) ([]engine.PlaybookMatch, error) {
	if s.embedder == nil || s.index == nil {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("embed message: %w", err)
	}

	var filter *qdrant.Filter
	if intent != domain.IntentOther {
		filter = qdrant.NewFieldFilter("intent", string(intent))
	}

	results, err := s.index.Search(ctx, vector, searchLimit, filter)
	if err != nil {
		return nil, fmt.Errorf("search playbooks: %w", err)
	}

	// An intent-filtered search that comes back empty falls through to an
	// unfiltered pass; a playbook tagged differently still beats no answer.
	if len(results) == 0 && filter != nil {
		results, err = s.index.Search(ctx, vector, searchLimit, nil)
		if err != nil {
			return nil, fmt.Errorf("search playbooks unfiltered: %w", err)
		}
	}

	matches := make([]engine.PlaybookMatch, 0, len(results))
	for _, result := range results {
		matches = append(matches, mapResult(result))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches, nil
}

func mapResult(result qdrant.SearchResult) engine.PlaybookMatch {
	match := engine.PlaybookMatch{
		PlaybookID: fmt.Sprintf("%v", result.ID),
		Confidence: clampConfidence(result.Score),
	}

	if id, ok := result.Payload["playbook_id"].(string); ok && id != "" {
		match.PlaybookID = id
	}

	rawSteps, ok := result.Payload["steps"].([]interface{})
	if !ok {
		if content, ok := result.Payload["content"].(string); ok && content != "" {
			match.Steps = []engine.PlaybookStep{{Order: 1, Content: content}}
		}
		return match
	}

	for i, raw := range rawSteps {
		step, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := step["content"].(string)
		if content == "" {
			continue
		}
		order := i + 1
		if o, ok := step["order"].(float64); ok {
			order = int(o)
		}
		match.Steps = append(match.Steps, engine.PlaybookStep{Order: order, Content: content})
	}

	sort.SliceStable(match.Steps, func(i, j int) bool {
		return match.Steps[i].Order < match.Steps[j].Order
	})
	return match
}

func clampConfidence(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
