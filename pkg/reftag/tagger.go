// Package reftag turns inline entity markup in generated prose into
// structured spans for client-side rendering. It runs on directive-
// stripped text only and is lossless with respect to visible characters:
// concatenating the segments' text reconstructs the input minus tags.
package reftag

import (
	"regexp"

	"golang.org/x/text/cases"
)

// Kind classifies an entity reference for rendering.
type Kind string

const (
	KindText     Kind = "text"
	KindNPC      Kind = "npc"
	KindItem     Kind = "item"
	KindLocation Kind = "location"
	KindOther    Kind = "other"
)

// Hint is a coarse friendliness classification derived from relationship
// affinity, used only for display styling.
type Hint string

const (
	HintHostile  Hint = "hostile"
	HintNeutral  Hint = "neutral"
	HintFriendly Hint = "friendly"
)

// Affinity bands follow the game's renderer: ±10 separates neutral
// acquaintances from friends and enemies.
const (
	friendlyThreshold = 10
	hostileThreshold  = -10
)

// HintForAffinity buckets a numeric affinity into a display hint.
func HintForAffinity(affinity float64) Hint {
	switch {
	case affinity >= friendlyThreshold:
		return HintFriendly
	case affinity <= hostileThreshold:
		return HintHostile
	default:
		return HintNeutral
	}
}

// Segment is one piece of render-ready narrative: either plain text or
// an entity reference span. Spans are transient per-response views and
// carry no ownership of the underlying entity record.
type Segment struct {
	Type    Kind   `json:"type"`
	Content string `json:"content,omitempty"`           // plain text segments
	ID      string `json:"id,omitempty"`                // entity segments
	Text    string `json:"text,omitempty"`              // entity display text
	Hint    Hint   `json:"relationship_hint,omitempty"` // npc segments only
}

// kindSynonyms normalizes the kind names the model emits. The upstream
// generator is inconsistent about language and casing, so the table
// carries both English and Chinese forms; keys are case-folded.
var kindSynonyms = map[string]Kind{
	"npc":       KindNPC,
	"character": KindNPC,
	"person":    KindNPC,
	"人物":        KindNPC,
	"角色":        KindNPC,
	"item":      KindItem,
	"inv_item":  KindItem,
	"object":    KindItem,
	"物品":        KindItem,
	"道具":        KindItem,
	"location":  KindLocation,
	"place":     KindLocation,
	"地點":        KindLocation,
	"地点":        KindLocation,
	"場景":        KindLocation,
}

// refPattern matches <kind id="ID">display</kind>. Go's regexp has no
// backreferences, so the closing tag is captured separately and checked
// against the opening tag in code.
var refPattern = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_]*|\p{Han}+)\s+id="([^"]*)"\s*>([^<]*)</\s*([A-Za-z_][A-Za-z0-9_]*|\p{Han}+)\s*>`)

var fold = cases.Fold()

// NormalizeKind maps a raw kind name to its canonical Kind. Unmapped
// kinds pass through as KindOther rather than being rejected.
func NormalizeKind(raw string) Kind {
	if k, ok := kindSynonyms[fold.String(raw)]; ok {
		return k
	}
	return KindOther
}

// VisibleText removes entity markup, keeping the display text. Used for
// narrative log summaries where spans are not needed.
func VisibleText(text string) string {
	return refPattern.ReplaceAllString(text, "$3")
}

// AffinityFunc resolves the player's affinity toward an NPC id. The
// tagger reads it from the pre-mutation snapshot, so hints reflect
// relationship state as of the start of the turn.
type AffinityFunc func(id string) float64

// Tag splits stripped narrative text into an ordered sequence of plain
// text and entity reference segments. Markup with mismatched open and
// close tags is left in place as plain text.
func Tag(text string, affinity AffinityFunc) []Segment {
	var segments []Segment
	appendText := func(s string) {
		if s == "" {
			return
		}
		// Merge with a preceding text segment so mismatched markup does
		// not fracture the prose.
		if n := len(segments); n > 0 && segments[n-1].Type == KindText {
			segments[n-1].Content += s
			return
		}
		segments = append(segments, Segment{Type: KindText, Content: s})
	}

	rest := text
	for {
		loc := refPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			appendText(rest)
			break
		}

		openKind := rest[loc[2]:loc[3]]
		closeKind := rest[loc[8]:loc[9]]
		if fold.String(openKind) != fold.String(closeKind) {
			appendText(rest[:loc[1]])
			rest = rest[loc[1]:]
			continue
		}

		appendText(rest[:loc[0]])

		seg := Segment{
			Type: NormalizeKind(openKind),
			ID:   rest[loc[4]:loc[5]],
			Text: rest[loc[6]:loc[7]],
		}
		if seg.Type == KindNPC {
			var a float64
			if affinity != nil {
				a = affinity(seg.ID)
			}
			seg.Hint = HintForAffinity(a)
		}
		segments = append(segments, seg)
		rest = rest[loc[1]:]
	}

	return segments
}
