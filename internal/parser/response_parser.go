// Package parser converts raw model text into a structured command plus
// prose. Parse errors never propagate as Go errors to the caller — a
// malformed response degrades to a command-less ParsedResponse whose Prose
// is the original text, so the reasoning loop can hand it back to the
// model for self-correction.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/tools"
	"go.uber.org/zap"
)

// ParsedResponse pairs a model turn's free-text prose with the single
// structured command (if any) extracted from it.
type ParsedResponse struct {
	Prose   string
	Command *tools.Command
}

var (
	payloadRe   = regexp.MustCompile(`(?s)<<<PAYLOAD_(\d+)>>>(.*?)<<<END_PAYLOAD_\d+>>>`)
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")
	fencedAnyRe  = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n?(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	jsLineCommentRe = regexp.MustCompile(`//[^\n]*`)
	jsBlockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	greetingRe       = regexp.MustCompile(`(?i)^(hi|hello|hey|sure|okay|ok|got it|understood)[.!,\s]*$`)
)

// Parse runs the full extraction pipeline: mask payloads, extract JSON,
// repair and parse it, rehydrate payloads into the command, clean up
// whatever prose is left.
func Parse(raw string) ParsedResponse {
	masked, payloads := maskPayloads(raw)

	jsonText, remainder, found := extractJSON(masked)
	if !found {
		return ParsedResponse{Prose: cleanupProse(unmaskPayloads(masked, payloads))}
	}

	cmd, err := parseCommand(jsonText)
	if err != nil {
		logging.Get(logging.CategoryParser).Debug("command extraction failed, returning raw prose",
			zap.Error(err))
		return ParsedResponse{Prose: cleanupProse(unmaskPayloads(masked, payloads))}
	}

	rehydrate(cmd, payloads)

	prose := cleanupProse(unmaskPayloads(remainder, payloads))
	return ParsedResponse{Prose: prose, Command: cmd}
}

// maskPayloads replaces <<<PAYLOAD_n>>>...<<<END_PAYLOAD_n>>> bodies with a
// placeholder token so brace-counting JSON extraction is never confused by
// braces embedded in arbitrary code payloads.
func maskPayloads(raw string) (string, map[string]string) {
	payloads := make(map[string]string)
	masked := payloadRe.ReplaceAllStringFunc(raw, func(match string) string {
		sub := payloadRe.FindStringSubmatch(match)
		id := sub[1]
		payloads[id] = sub[2]
		return fmt.Sprintf("<<<PAYLOAD_%s>>>", id)
	})
	return masked, payloads
}

func unmaskPayloads(text string, payloads map[string]string) string {
	for id, body := range payloads {
		text = strings.ReplaceAll(text, fmt.Sprintf("<<<PAYLOAD_%s>>>", id), body)
	}
	return text
}

// extractJSON tries, in order: a fenced ```json block, then a balanced
// {...} region containing a top-level "action" key. It returns the JSON
// text, the original string with that region removed, and whether anything
// was found.
func extractJSON(masked string) (jsonText string, remainder string, found bool) {
	if m := fencedJSONRe.FindStringSubmatchIndex(masked); m != nil {
		candidate := masked[m[2]:m[3]]
		if repaired, err := repairAndParse(candidate); err == nil {
			remainder = masked[:m[0]] + masked[m[1]:]
			return repaired, remainder, true
		}
	}

	start, end, ok := findBalancedActionObject(masked)
	if !ok {
		return "", masked, false
	}
	candidate := masked[start:end]
	repaired, err := repairAndParse(candidate)
	if err != nil {
		return "", masked, false
	}
	remainder = masked[:start] + masked[end:]
	return repaired, remainder, true
}

// findBalancedActionObject scans for a balanced {...} region that contains
// a top-level "action" key, tracking string/escape state so braces inside
// string literals don't throw off the brace count.
func findBalancedActionObject(s string) (start, end int, ok bool) {
	depth := 0
	inString := false
	escaped := false
	objStart := -1
	strStart := -1
	topLevelAction := false

	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			if !inString {
				strStart = i
			} else if depth == 1 && s[strStart:i+1] == `"action"` {
				topLevelAction = true
			}
			inString = !inString
		case inString:
			// inside a string, ignore braces
		case r == '{':
			if depth == 0 {
				objStart = i
				topLevelAction = false
			}
			depth++
		case r == '}':
			if depth > 0 {
				depth--
				if depth == 0 && objStart >= 0 {
					if topLevelAction {
						return objStart, i + 1, true
					}
					objStart = -1
				}
			}
		}
	}
	return 0, 0, false
}

// parseCommand unmarshals already-extracted, already-repaired JSON text
// into a tools.Command.
func parseCommand(jsonText string) (*tools.Command, error) {
	var raw struct {
		Action     string         `json:"action"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, err
	}
	if raw.Action == "" {
		return nil, fmt.Errorf("parser: json object has no action field")
	}
	if raw.Parameters == nil {
		raw.Parameters = map[string]any{}
	}
	return &tools.Command{Action: raw.Action, Parameters: raw.Parameters}, nil
}

// rehydrate substitutes remembered payload text into any "content",
// "diff", "diff_content" or "script" parameter that refers to a
// placeholder ID.
func rehydrate(cmd *tools.Command, payloads map[string]string) {
	for _, key := range []string{"content", "diff", "diff_content", "script"} {
		v, ok := cmd.Parameters[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		cmd.Parameters[key] = unmaskPayloads(s, payloads)
	}
}

// cleanupProse strips whitespace, empty fenced blocks, and bare greetings so
// the loop can tell "no prose" from "a one-word greeting."
func cleanupProse(text string) string {
	text = strings.TrimSpace(text)
	text = fencedAnyRe.ReplaceAllStringFunc(text, func(block string) string {
		inner := fencedAnyRe.FindStringSubmatch(block)[1]
		if strings.TrimSpace(inner) == "" {
			return ""
		}
		return block
	})
	text = strings.TrimSpace(text)

	if text == "" || greetingRe.MatchString(text) {
		return ""
	}
	return text
}
