// Package prompts assembles the messages sent to the narrative model.
package prompts

import (
	"encoding/json"
	"fmt"

	"github.com/textjianghu/jianghu-engine/pkg/chat"
	"github.com/textjianghu/jianghu-engine/pkg/worldstate"
)

// systemPrompt instructs the model on setting, directive grammar and
// entity markup. The engine only consumes the free-form prose plus the
// embedded blocks; everything else here is narrative guidance.
const systemPrompt = `You are the game master of a wuxia text adventure set in Song-dynasty China.
Narrate the outcome of the player's action in vivid prose, then continue the scene.

When the world changes, embed directives in your prose using these exact forms:
- [CREATE_NPC: {"id":"npc_...","name":"..."}] for a new character
- [CREATE_LOCATION: {"id":"loc_...","name":"..."}] for a new place
- [UPDATE_ENTITY: {"entity_type":"npc","entity_id":"npc_...","updates":[{"field_path":"...","new_value":...}]}] to change an existing entity
- [UPDATE_PC_DATA: {"core_status.hp.current": -10}] for player changes; numbers are deltas
- [ADD_ITEM: {"id":"item_...","name":"..."}] when the player gains an item
Directive payloads must be single JSON objects. Directives are invisible to the player.

Wrap every interactive entity you mention in markup:
<npc id="npc_...">display text</npc>, <item id="item_...">display text</item>,
<location id="loc_...">display text</location>.
Reuse the same id for the same entity across turns. Never invent new markup kinds.`

// Builder assembles chat messages for one turn.
type Builder struct {
	state  *worldstate.WorldState
	action string
}

func New() *Builder {
	return &Builder{}
}

// WithWorldState attaches the pre-turn world snapshot.
func (b *Builder) WithWorldState(ws *worldstate.WorldState) *Builder {
	b.state = ws
	return b
}

// WithPlayerAction attaches the player's chosen action text.
func (b *Builder) WithPlayerAction(action string) *Builder {
	b.action = action
	return b
}

// Build produces the message list for the LLM call.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if b.state == nil {
		return nil, fmt.Errorf("world state is required")
	}
	if b.action == "" {
		return nil, fmt.Errorf("player action is required")
	}

	snapshot, err := json.Marshal(b.state.Doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal world snapshot: %w", err)
	}

	return []chat.ChatMessage{
		{
			Role:    chat.ChatRoleSystem,
			Content: systemPrompt,
		},
		{
			Role: chat.ChatRoleUser,
			Content: fmt.Sprintf("Current world state:\n%s\n\nThe player's action: %q\n\nNarrate the next turn.",
				snapshot, b.action),
		},
	}, nil
}
