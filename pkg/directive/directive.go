// Package directive extracts and interprets the command mini-language the
// narrative model embeds in its prose. Parsing strips command blocks from
// the visible text; interpretation turns them into mutation operations.
// Both stages recover locally from bad input: a garbled block costs a
// warning, never the turn.
package directive

import "encoding/json"

// Command names a mutation directive embedded in generated text.
type Command string

const (
	CmdCreateNPC      Command = "CREATE_NPC"
	CmdCreateLocation Command = "CREATE_LOCATION"
	CmdUpdateEntity   Command = "UPDATE_ENTITY"
	CmdUpdatePCData   Command = "UPDATE_PC_DATA"
	CmdAddItem        Command = "ADD_ITEM"
)

// registry is the closed set of commands the interpreter understands.
// The model's vocabulary drifts across generations; anything outside
// this set is dropped with a warning rather than crashing the turn.
var registry = map[Command]bool{
	CmdCreateNPC:      true,
	CmdCreateLocation: true,
	CmdUpdateEntity:   true,
	CmdUpdatePCData:   true,
	CmdAddItem:        true,
}

// Known reports whether the command is part of the fixed vocabulary.
func (c Command) Known() bool {
	return registry[c]
}

// Directive is one parsed command block. It lives for a single turn:
// materialized by the parser, consumed once by the interpreter, never
// persisted. Only its effects outlive the turn.
type Directive struct {
	Command Command
	Payload json.RawMessage
}
