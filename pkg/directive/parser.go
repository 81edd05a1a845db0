package directive

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// blockStart matches the opening of a command block: either the canonical
// colon form "[NAME:" or the bare token "[NAME]" that opens the wrapped
// compatibility form.
var blockStart = regexp.MustCompile(`\[([A-Z_]+)([:\]])`)

// Parse scans raw model output for command blocks, removes every
// recognized span from the text and returns the parsed directives in
// order of appearance. That order carries no semantic guarantee; the
// interpreter owns any required operation ordering.
//
// The canonical grammar is "[NAME: {json}]". Two compatibility aliases
// are accepted, mutually exclusive within one occurrence: a trailing
// "[/NAME]" immediately after the canonical form, and the wrapped form
// "[NAME]{json}[/NAME]". A block whose payload fails to parse is still
// stripped from the visible text and reported as a warning.
func Parse(text string) (string, []Directive, []string) {
	var out strings.Builder
	var directives []Directive
	var warnings []string

	rest := text
	for {
		loc := blockStart.FindStringSubmatchIndex(rest)
		if loc == nil {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:loc[0]])

		name := rest[loc[2]:loc[3]]
		block := rest[loc[0]:]
		var consumed int
		var payload json.RawMessage
		var warn string

		if rest[loc[4]:loc[5]] == ":" {
			consumed, payload, warn = parseColonBlock(block, name, loc[5]-loc[0])
		} else {
			consumed, payload, warn = parseWrappedBlock(block, name, loc[5]-loc[0])
		}

		if warn != "" {
			warnings = append(warnings, warn)
		}
		if payload != nil {
			directives = append(directives, Directive{Command: Command(name), Payload: payload})
		}
		rest = rest[loc[0]+consumed:]
	}

	return out.String(), directives, warnings
}

// parseColonBlock handles "[NAME: {json}]" with an optional trailing
// "[/NAME]". payloadStart is the offset just past the colon. It returns
// the number of bytes consumed from block, the payload (nil when
// malformed) and a warning message.
func parseColonBlock(block, name string, payloadStart int) (int, json.RawMessage, string) {
	i := skipSpaces(block, payloadStart)

	if i < len(block) && block[i] == '{' {
		dec := json.NewDecoder(strings.NewReader(block[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			end := skipSpaces(block, i+int(dec.InputOffset()))
			if end < len(block) && block[end] == ']' {
				consumed := consumeClosingTag(block, end+1, name)
				return consumed, raw, ""
			}
		}
	}

	// Malformed payload: strip through the next "]" so the broken block
	// never reaches the player, and keep processing the rest of the text.
	warn := fmt.Sprintf("directive %s: malformed payload, block stripped", name)
	if idx := strings.IndexByte(block[payloadStart:], ']'); idx >= 0 {
		consumed := consumeClosingTag(block, payloadStart+idx+1, name)
		return consumed, nil, warn
	}
	return len(block), nil, warn
}

// parseWrappedBlock handles "[NAME]{json}[/NAME]". tokenEnd is the offset
// just past the opening token's "]".
func parseWrappedBlock(block, name string, tokenEnd int) (int, json.RawMessage, string) {
	closing := "[/" + name + "]"
	idx := strings.Index(block[tokenEnd:], closing)
	if idx < 0 {
		// A bare "[NAME]" with no closing tag is stray bracket syntax;
		// drop the token and leave the rest of the text alone.
		return tokenEnd, nil, fmt.Sprintf("directive %s: stray bracket token stripped", name)
	}

	inner := strings.TrimSpace(block[tokenEnd : tokenEnd+idx])
	consumed := tokenEnd + idx + len(closing)

	if !strings.HasPrefix(inner, "{") || !json.Valid([]byte(inner)) {
		return consumed, nil, fmt.Sprintf("directive %s: malformed payload, block stripped", name)
	}
	return consumed, json.RawMessage(inner), ""
}

// consumeClosingTag consumes an optional "[/NAME]" alias immediately
// following a canonical block, tolerating whitespace in between.
func consumeClosingTag(block string, offset int, name string) int {
	closing := "[/" + name + "]"
	i := skipSpaces(block, offset)
	if strings.HasPrefix(block[i:], closing) {
		return i + len(closing)
	}
	return offset
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}
