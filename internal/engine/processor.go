// Package engine sequences a player turn: parse directives out of the
// model's prose, interpret them into mutations, apply them as one
// transaction, then tag the remaining narrative for rendering.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/textjianghu/jianghu-engine/internal/services"
	"github.com/textjianghu/jianghu-engine/internal/storage"
	"github.com/textjianghu/jianghu-engine/pkg/directive"
	"github.com/textjianghu/jianghu-engine/pkg/fieldpath"
	"github.com/textjianghu/jianghu-engine/pkg/mutation"
	"github.com/textjianghu/jianghu-engine/pkg/prompts"
	"github.com/textjianghu/jianghu-engine/pkg/reftag"
	"github.com/textjianghu/jianghu-engine/pkg/worldstate"
)

// logSummaryLimit caps narrative log entries to keep the append-only
// log from dominating the document.
const logSummaryLimit = 240

// TurnResult is the outcome of one fully processed turn.
type TurnResult struct {
	Segments         []reftag.Segment
	MutationWarnings []string
	State            *worldstate.WorldState
}

// Processor runs the turn pipeline against a store and an LLM.
type Processor struct {
	store  storage.Store
	llm    services.LLMService
	logger *slog.Logger
}

func NewProcessor(store storage.Store, llm services.LLMService, logger *slog.Logger) *Processor {
	return &Processor{
		store:  store,
		llm:    llm,
		logger: logger,
	}
}

// PlayTurn handles a complete player turn: load state, prompt the
// model, then process its raw output. The LLM call is the dominant
// latency source and may block for tens of seconds; any timeout on it
// belongs to the caller's context, not the engine.
func (p *Processor) PlayTurn(ctx context.Context, sessionID uuid.UUID, action string) (*TurnResult, error) {
	ws, err := p.store.LoadWorldState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load world state: %w", err)
	}

	messages, err := prompts.New().
		WithWorldState(ws).
		WithPlayerAction(action).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	p.logger.Debug("Sending turn to LLM", "session_id", sessionID)
	raw, err := p.llm.Chat(ctx, messages)
	if err != nil {
		// The mutation phase was never reached; state is untouched.
		return nil, fmt.Errorf("LLM chat failed: %w", err)
	}

	return p.ProcessTurn(ctx, sessionID, action, raw)
}

// ProcessTurn runs the engine pipeline on raw model output:
// parse -> interpret -> apply transactionally -> tag. Entity tagging
// runs last, against the pre-mutation snapshot captured inside the
// winning transaction attempt, so relationship hints reflect state as
// of the start of the turn while the returned narrative is already
// free of directive syntax.
func (p *Processor) ProcessTurn(ctx context.Context, sessionID uuid.UUID, action, raw string) (*TurnResult, error) {
	stripped, directives, parseWarnings := directive.Parse(raw)
	for _, w := range parseWarnings {
		p.logger.Warn("Directive parse warning", "session_id", sessionID, "warning", w)
	}

	summary := truncate(reftag.VisibleText(stripped), logSummaryLimit)

	var preTurn *worldstate.WorldState
	var interpretWarnings []string
	updated, applyWarnings, err := p.store.ApplyTurn(ctx, sessionID, func(snapshot *worldstate.WorldState) ([]mutation.Op, error) {
		pre, copyErr := snapshot.DeepCopy()
		if copyErr != nil {
			return nil, copyErr
		}
		preTurn = pre

		// Re-derived fresh on every transaction attempt; a retried
		// append must not replay a previously built list.
		var ops []mutation.Op
		ops, interpretWarnings = directive.Interpret(directives)
		ops = append(ops, mutation.AppendToArray{
			Path: fieldpath.New("narrative_log"),
			Value: map[string]any{
				"time":    time.Now().Format(time.RFC3339),
				"action":  action,
				"summary": summary,
			},
		})
		return ops, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply turn mutations: %w", err)
	}

	for _, w := range interpretWarnings {
		p.logger.Warn("Directive interpret warning", "session_id", sessionID, "warning", w)
	}
	for _, w := range applyWarnings {
		p.logger.Warn("Mutation apply warning", "session_id", sessionID, "warning", w)
	}

	segments := reftag.Tag(stripped, preTurn.NPCAffinity)

	var warnings []string
	warnings = append(warnings, parseWarnings...)
	warnings = append(warnings, interpretWarnings...)
	warnings = append(warnings, applyWarnings...)

	return &TurnResult{
		Segments:         segments,
		MutationWarnings: warnings,
		State:            updated,
	}, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
