package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textjianghu/jianghu-engine/internal/services"
	"github.com/textjianghu/jianghu-engine/internal/storage"
	"github.com/textjianghu/jianghu-engine/pkg/fieldpath"
	"github.com/textjianghu/jianghu-engine/pkg/reftag"
	"github.com/textjianghu/jianghu-engine/pkg/worldstate"
)

func setupTestProcessor(t *testing.T) (*Processor, *storage.MockStore, *services.MockLLMService, *worldstate.WorldState) {
	t.Helper()

	store := storage.NewMockStore()
	llm := services.NewMockLLMService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ws := worldstate.New("deepseek-chat")
	require.NoError(t, store.CreateWorldState(context.Background(), ws))

	return NewProcessor(store, llm, logger), store, llm, ws
}

func TestProcessTurn_CreateNPCAndTag(t *testing.T) {
	p, store, _, ws := setupTestProcessor(t)
	ctx := context.Background()

	raw := `You meet [CREATE_NPC: {"id":"npc_1","name":"Old Man"}]<npc id="npc_1">Old Man</npc> by the well.`
	result, err := p.ProcessTurn(ctx, ws.ID, "look around", raw)
	require.NoError(t, err)

	require.Len(t, result.Segments, 3)
	assert.Equal(t, reftag.Segment{Type: reftag.KindText, Content: "You meet "}, result.Segments[0])
	assert.Equal(t, reftag.KindNPC, result.Segments[1].Type)
	assert.Equal(t, "npc_1", result.Segments[1].ID)
	assert.Equal(t, "Old Man", result.Segments[1].Text)
	assert.Equal(t, reftag.HintNeutral, result.Segments[1].Hint)
	assert.Equal(t, reftag.Segment{Type: reftag.KindText, Content: " by the well."}, result.Segments[2])

	stored, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	npc, ok := stored.Get(fieldpath.New("npcs", "npc_1"))
	require.True(t, ok, "created NPC should be persisted")
	assert.Equal(t, "Old Man", npc.(map[string]any)["name"])
}

func TestProcessTurn_AppendsNarrativeLog(t *testing.T) {
	p, store, _, ws := setupTestProcessor(t)
	ctx := context.Background()

	raw := `The <location id="loc_village_gate">village gate</location> creaks open.`
	_, err := p.ProcessTurn(ctx, ws.ID, "push the gate", raw)
	require.NoError(t, err)

	stored, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	v, ok := stored.Get(fieldpath.New("narrative_log"))
	require.True(t, ok)
	log, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, log, 1)

	entry := log[0].(map[string]any)
	assert.Equal(t, "push the gate", entry["action"])
	assert.Equal(t, "The village gate creaks open.", entry["summary"])
	assert.NotEmpty(t, entry["time"])
}

func TestProcessTurn_HintUsesPreTurnAffinity(t *testing.T) {
	p, store, _, ws := setupTestProcessor(t)
	ctx := context.Background()

	// Same turn both raises affinity past the friendly threshold and
	// mentions the NPC. The hint must come from state before the turn.
	raw := `[UPDATE_PC_DATA: {"relationships":{"npc_1":{"affinity":50}}}]<npc id="npc_1">Old Man</npc> smiles warmly.`
	result, err := p.ProcessTurn(ctx, ws.ID, "share wine", raw)
	require.NoError(t, err)

	require.NotEmpty(t, result.Segments)
	assert.Equal(t, reftag.HintNeutral, result.Segments[0].Hint)

	stored, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, stored.NPCAffinity("npc_1"))

	// Next turn the raised affinity is visible.
	result, err = p.ProcessTurn(ctx, ws.ID, "greet him", `<npc id="npc_1">Old Man</npc> waves back.`)
	require.NoError(t, err)
	require.NotEmpty(t, result.Segments)
	assert.Equal(t, reftag.HintFriendly, result.Segments[0].Hint)
}

func TestProcessTurn_DamageComposesWithSeed(t *testing.T) {
	p, store, _, ws := setupTestProcessor(t)
	ctx := context.Background()

	raw := `A stone grazes your shoulder. [UPDATE_PC_DATA: {"core_status":{"hp":{"current":-5}}}]`
	_, err := p.ProcessTurn(ctx, ws.ID, "dodge", raw)
	require.NoError(t, err)

	stored, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	hp, ok := stored.Get(fieldpath.New("player", "core_status", "hp", "current"))
	require.True(t, ok)
	assert.Equal(t, 95.0, hp)
}

func TestProcessTurn_MalformedDirectiveWarnsAndContinues(t *testing.T) {
	p, store, _, ws := setupTestProcessor(t)
	ctx := context.Background()

	raw := `[CREATE_NPC: {bad json]The road stretches on.`
	result, err := p.ProcessTurn(ctx, ws.ID, "walk", raw)
	require.NoError(t, err)

	assert.NotEmpty(t, result.MutationWarnings)
	require.Len(t, result.Segments, 1)
	assert.Equal(t, "The road stretches on.", result.Segments[0].Content)

	stored, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	npcs, ok := stored.Get(fieldpath.New("npcs"))
	require.True(t, ok)
	assert.Empty(t, npcs.(map[string]any))
}

func TestProcessTurn_ConflictPropagates(t *testing.T) {
	p, store, _, ws := setupTestProcessor(t)
	store.SetApplyError(storage.ErrConflict)

	_, err := p.ProcessTurn(context.Background(), ws.ID, "act", "Nothing happens.")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestProcessTurn_SessionNotFound(t *testing.T) {
	p, _, _, _ := setupTestProcessor(t)

	_, err := p.ProcessTurn(context.Background(), worldstate.New("").ID, "act", "Nothing happens.")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlayTurn_FullPipeline(t *testing.T) {
	p, store, llm, ws := setupTestProcessor(t)
	ctx := context.Background()

	llm.QueueResponse(`You meet [CREATE_NPC: {"id":"npc_1","name":"Old Man"}]<npc id="npc_1">Old Man</npc> by the well.`)

	result, err := p.PlayTurn(ctx, ws.ID, "look around")
	require.NoError(t, err)
	assert.Equal(t, 1, llm.Calls())
	require.Len(t, result.Segments, 3)
	assert.Equal(t, "npc_1", result.Segments[1].ID)

	stored, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	_, ok := stored.Get(fieldpath.New("npcs", "npc_1"))
	assert.True(t, ok)
}

func TestPlayTurn_LLMErrorLeavesStateUntouched(t *testing.T) {
	p, store, llm, ws := setupTestProcessor(t)
	ctx := context.Background()

	llm.SetError(errors.New("upstream unavailable"))

	_, err := p.PlayTurn(ctx, ws.ID, "look around")
	require.Error(t, err)

	stored, err := store.LoadWorldState(ctx, ws.ID)
	require.NoError(t, err)
	v, ok := stored.Get(fieldpath.New("narrative_log"))
	require.True(t, ok)
	assert.Empty(t, v.([]any))
}
