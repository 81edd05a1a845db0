package directive

import (
	"encoding/json"
	"fmt"

	"github.com/textjianghu/jianghu-engine/pkg/fieldpath"
	"github.com/textjianghu/jianghu-engine/pkg/mutation"
)

// namespaceAliases maps the entity_type values the model emits to
// document namespaces.
var namespaceAliases = map[string]string{
	"npc":       "npcs",
	"npcs":      "npcs",
	"character": "npcs",
	"location":  "locations",
	"locations": "locations",
	"place":     "locations",
}

// Interpret turns parsed directives into mutation operations. It is a
// pure function: no I/O, no state reads, so a transaction retry can
// re-derive the operation list from the same directives at no cost.
// Unknown commands and payloads missing required fields are skipped
// with a warning.
func Interpret(directives []Directive) ([]mutation.Op, []string) {
	var ops []mutation.Op
	var warnings []string

	for _, d := range directives {
		if !d.Command.Known() {
			warnings = append(warnings, fmt.Sprintf("unknown command %s, ignored", d.Command))
			continue
		}

		var dirOps []mutation.Op
		var err error
		switch d.Command {
		case CmdCreateNPC:
			dirOps, err = interpretCreate("npcs", d.Payload)
		case CmdCreateLocation:
			dirOps, err = interpretCreate("locations", d.Payload)
		case CmdUpdateEntity:
			dirOps, err = interpretUpdateEntity(d.Payload)
		case CmdUpdatePCData:
			dirOps, err = interpretUpdatePCData(d.Payload)
		case CmdAddItem:
			dirOps, err = interpretAddItem(d.Payload)
		}
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("command %s: %v, skipped", d.Command, err))
			continue
		}
		ops = append(ops, dirOps...)
	}

	return ops, warnings
}

func interpretCreate(namespace string, payload json.RawMessage) ([]mutation.Op, error) {
	var record map[string]any
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	id, ok := record["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("missing required field %q", "id")
	}
	return []mutation.Op{
		mutation.CreateEntity{Namespace: namespace, ID: id, Record: record},
	}, nil
}

func interpretUpdateEntity(payload json.RawMessage) ([]mutation.Op, error) {
	var body struct {
		EntityType string `json:"entity_type"`
		EntityID   string `json:"entity_id"`
		Updates    []struct {
			FieldPath string `json:"field_path"`
			NewValue  any    `json:"new_value"`
		} `json:"updates"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	namespace, ok := namespaceAliases[body.EntityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity_type %q", body.EntityType)
	}
	if body.EntityID == "" {
		return nil, fmt.Errorf("missing required field %q", "entity_id")
	}

	base := fieldpath.New(namespace, body.EntityID)
	ops := make([]mutation.Op, 0, len(body.Updates))
	for _, u := range body.Updates {
		rel, err := fieldpath.Parse(u.FieldPath)
		if err != nil {
			return nil, fmt.Errorf("bad field_path %q: %w", u.FieldPath, err)
		}
		ops = append(ops, mutation.SetField{Path: base.Child(rel...), Value: u.NewValue})
	}
	return ops, nil
}

// interpretUpdatePCData maps a flat-or-nested object of field updates
// onto the player region. Numeric values are deltas (IncrementField);
// everything else overwrites (SetField). Nested objects are flattened
// to dotted paths first.
func interpretUpdatePCData(payload json.RawMessage) ([]mutation.Op, error) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	keys, values := fieldpath.Flatten(body)
	base := fieldpath.New("player")
	ops := make([]mutation.Op, 0, len(keys))
	for _, key := range keys {
		rel, err := fieldpath.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("bad field path %q: %w", key, err)
		}
		path := base.Child(rel...)
		if delta, numeric := mutation.IsNumeric(values[key]); numeric {
			ops = append(ops, mutation.IncrementField{Path: path, Delta: delta})
		} else {
			ops = append(ops, mutation.SetField{Path: path, Value: values[key]})
		}
	}
	return ops, nil
}

func interpretAddItem(payload json.RawMessage) ([]mutation.Op, error) {
	var record map[string]any
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	id, _ := record["id"].(string)
	name, _ := record["name"].(string)
	if id == "" {
		return nil, fmt.Errorf("missing required field %q", "id")
	}
	if name == "" {
		return nil, fmt.Errorf("missing required field %q", "name")
	}
	return []mutation.Op{
		mutation.AppendToArray{Path: fieldpath.New("player", "inventory"), Value: record},
	}, nil
}
