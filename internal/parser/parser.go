// Package parser decodes the action text protocol the bot embeds in push
// bodies.
//
// Grammar of a body:
//
//	body   := { noise | block }
//	block  := "Action ID: " idline { "\n" line }
//	idline := digits "\n"        (anything else drops the block)
//	line   := known ": " value   (starts a new field)
//	        | text               (continues the current value)
//
// A block runs from an occurrence of "Action ID: " up to, but excluding, the
// next occurrence of "Action ID:" (no trailing space required) or the end of
// the body. At least one character must follow "Action ID: " for a block to
// exist. Only keys from the configured allow-list start a field; every other
// line is folded into the value being accumulated, so values may span lines.
package parser

import (
	"regexp"
	"strings"

	"github.com/tbourn/flashback-dashboard/internal/domain"
)

const (
	blockStart = "Action ID: "
	blockEnd   = "Action ID:"
	sep        = ": "
)

// DefaultKnownKeys is the field list the bot emits.
var DefaultKnownKeys = []string{
	"Quoted User",
	"Quoted Post",
	"From Username",
	"Original Post",
	"Generated Answer",
	"Original Post ID",
	"Username",
}

var generatedAnswerLine = regexp.MustCompile(`Generated Answer: [^\n\r\x{2028}\x{2029}]*`)

// Parser decodes action blocks against a fixed allow-list of keys.
// It holds no mutable state and is safe for concurrent use.
type Parser struct {
	known map[string]struct{}
}

// New returns a Parser recognising knownKeys; nil or empty selects
// DefaultKnownKeys.
func New(knownKeys []string) *Parser {
	if len(knownKeys) == 0 {
		knownKeys = DefaultKnownKeys
	}
	p := &Parser{known: make(map[string]struct{}, len(knownKeys))}
	for _, k := range knownKeys {
		p.known[k] = struct{}{}
	}
	return p
}

// ParseFeed decodes every push body in order. An action id seen earlier in
// the batch wins over later occurrences.
func (p *Parser) ParseFeed(pushes []domain.PushItem) []domain.ActionRecord {
	seen := make(map[string]struct{})
	out := make([]domain.ActionRecord, 0, len(pushes))
	for _, push := range pushes {
		out = p.appendBody(out, push.Body, seen)
	}
	return out
}

// ParseBody decodes a single body with its own de-duplication scope.
func (p *Parser) ParseBody(body string) []domain.ActionRecord {
	return p.appendBody(nil, body, make(map[string]struct{}))
}

func (p *Parser) appendBody(out []domain.ActionRecord, body string, seen map[string]struct{}) []domain.ActionRecord {
	for _, block := range SplitBlocks(body) {
		id, rest, ok := header(block)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, domain.ActionRecord{ActionID: id, Fields: p.fields(id, rest)})
	}
	return out
}

// fields scans the lines after the id line.
func (p *Parser) fields(id string, lines []string) map[string]string {
	rec := map[string]string{domain.ActionIDKey: id}
	var key, val string
	for _, line := range lines {
		candidate, _, _ := strings.Cut(line, sep)
		if _, ok := p.known[candidate]; ok {
			if key != "" && val != "" {
				rec[key] = strings.TrimSpace(val)
			}
			key = candidate
			val = valueAfterSep(line)
			continue
		}
		if val != "" {
			val += "\n"
		}
		val += line
	}
	if key != "" && val != "" {
		rec[key] = strings.TrimSpace(val)
	}
	return rec
}

// valueAfterSep returns the text after the first ": ". A bare key line with
// no separator keeps the historical behaviour of dropping its first rune
// position, i.e. "Username" yields "sername".
func valueAfterSep(line string) string {
	i := strings.Index(line, sep)
	if i < 0 {
		if line == "" {
			return ""
		}
		return line[1:]
	}
	return line[i+len(sep):]
}

// header validates the id line of a block and returns the id plus the
// remaining lines.
func header(block string) (string, []string, bool) {
	rest := block[len(blockStart):]
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	if n == 0 || n >= len(rest) || rest[n] != '\n' {
		return "", nil, false
	}
	return rest[:n], strings.Split(rest[n+1:], "\n"), true
}

// SplitBlocks returns the raw action blocks of body in order. It is the
// line-free scanner behind the block grammar: each block starts at
// "Action ID: " and stops right before the next "Action ID:" or at the end.
func SplitBlocks(body string) []string {
	var blocks []string
	pos := 0
	for pos < len(body) {
		i := strings.Index(body[pos:], blockStart)
		if i < 0 {
			break
		}
		start := pos + i
		// the block must own at least one character past the prefix
		from := start + len(blockStart) + 1
		if from > len(body) {
			break
		}
		end := len(body)
		if j := strings.Index(body[from:], blockEnd); j >= 0 {
			end = from + j
		}
		blocks = append(blocks, body[start:end])
		pos = end
	}
	return blocks
}

// References reports whether body carries the marker for actionID.
// Matching is by substring, so id 4 also matches a body for 42. Pushes in
// the wild are matched this way; tightening it needs the bot side to agree.
func References(body, actionID string) bool {
	return strings.Contains(body, blockStart+actionID)
}

// ReplaceGeneratedAnswer rewrites the first "Generated Answer: ..." line of
// body, leaving everything else verbatim.
func ReplaceGeneratedAnswer(body, answer string) string {
	loc := generatedAnswerLine.FindStringIndex(body)
	if loc == nil {
		return body
	}
	return body[:loc[0]] + "Generated Answer: " + answer + body[loc[1]:]
}
