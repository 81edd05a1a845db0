package worldstate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/textjianghu/jianghu-engine/pkg/fieldpath"
)

// WorldState is the per-session world document. Doc is a tree of nested
// maps and arrays addressed by field paths, with five top-level regions:
// player, world, npcs, locations and narrative_log. Entity ids are unique
// within their namespace for the lifetime of the session.
type WorldState struct {
	ID        uuid.UUID      `json:"id"`
	Model     string         `json:"model,omitempty"`
	Doc       map[string]any `json:"doc"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// New seeds a fresh world state for a new session. The starting document
// mirrors the game's initial save: a nameless wanderer at the village
// gate, full status meters, empty inventory.
func New(model string) *WorldState {
	now := time.Now()
	return &WorldState{
		ID:        uuid.New(),
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
		Doc: map[string]any{
			"player": map[string]any{
				"name":       "無名俠客",
				"appearance": "a travel-worn wanderer in a faded grey robe",
				"core_status": map[string]any{
					"hp":      map[string]any{"current": 100.0, "max": 100.0},
					"stamina": map[string]any{"current": 100.0, "max": 100.0},
					"mp":      map[string]any{"current": 50.0, "max": 50.0},
					"san":     map[string]any{"current": 100.0, "max": 100.0},
				},
				"attributes": map[string]any{
					"strength":     10.0,
					"intelligence": 10.0,
					"agility":      10.0,
					"luck":         10.0,
				},
				"inventory":     []any{},
				"relationships": map[string]any{},
			},
			"world": map[string]any{
				"time":        now.Format(time.RFC3339),
				"weather":     "clear",
				"temperature": 20.0,
				"location":    "loc_village_gate",
			},
			"npcs":          map[string]any{},
			"locations":     map[string]any{},
			"narrative_log": []any{},
		},
	}
}

// Get resolves a field path against the document. The second return
// value is false when any segment along the path is missing.
func (ws *WorldState) Get(p fieldpath.Path) (any, bool) {
	var current any = ws.Doc
	for _, seg := range p {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// NPCAffinity returns the player's affinity toward the given NPC id,
// read from player.relationships.<id>.affinity. Unknown NPCs and
// malformed records read as zero.
func (ws *WorldState) NPCAffinity(id string) float64 {
	v, ok := ws.Get(fieldpath.New("player", "relationships", id, "affinity"))
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

// DeepCopy returns an independent copy of the world state via a JSON
// round trip, safe to hold as a pre-mutation snapshot.
func (ws *WorldState) DeepCopy() (*WorldState, error) {
	data, err := json.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal world state for copy: %w", err)
	}
	var copied WorldState
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal world state copy: %w", err)
	}
	return &copied, nil
}
