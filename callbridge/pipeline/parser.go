package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	toolCodeOpen  = "<|begin_of_tool_code|>"
	toolCodeClose = "<|end_of_tool_code|>"
	toolCallOpen  = "<tool_call>"
	toolCallClose = "</tool_call>"
)

var (
	specialTokenRe  = regexp.MustCompile(`<\|[A-Za-z0-9_]+\|>|</?tool_call>`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// SegmentKind tags a parsed segment.
type SegmentKind int

const (
	SegmentProse SegmentKind = iota
	SegmentTool
	SegmentMalformed
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentProse:
		return "prose"
	case SegmentTool:
		return "tool"
	case SegmentMalformed:
		return "malformed"
	}
	return "unknown"
}

// ToolFragment is a candidate invocation found in model output.
type ToolFragment struct {
	Name     string
	Args     map[string]any
	ArgOrder []string
	Offset   int
}

// Segment is one element of the parsed output, in source order.
type Segment struct {
	Kind       SegmentKind
	Text       string        // prose text, or the raw malformed fragment
	Fragment   *ToolFragment // SegmentTool only
	Diagnostic *Diagnostic   // SegmentMalformed only
}

// ParseResult is the drained output of a Scanner.
type ParseResult struct {
	Segments    []Segment
	Diagnostics []Diagnostic
}

// Fragments returns the tool fragments in emission order.
func (r ParseResult) Fragments() []ToolFragment {
	var out []ToolFragment
	for _, s := range r.Segments {
		if s.Kind == SegmentTool {
			out = append(out, *s.Fragment)
		}
	}
	return out
}

// Prose joins the non-tool text with special tokens removed.
func (r ParseResult) Prose() string {
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		if s.Kind == SegmentProse {
			parts = append(parts, s.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Parse scans text to completion.
func Parse(text string) ParseResult {
	var res ParseResult
	sc := NewScanner(text)
	for {
		seg, ok := sc.Next()
		if !ok {
			return res
		}
		res.Segments = append(res.Segments, seg)
		if seg.Diagnostic != nil {
			res.Diagnostics = append(res.Diagnostics, *seg.Diagnostic)
		}
	}
}

// Scanner yields segments of model output one at a time. It never blocks
// and always terminates: every call to Next advances through the input.
type Scanner struct {
	text    string
	pos     int
	pending []Segment
}

func NewScanner(text string) *Scanner {
	return &Scanner{text: text}
}

// Reset restarts the scan from the beginning of the input.
func (s *Scanner) Reset() {
	s.pos = 0
	s.pending = nil
}

// Next returns the next segment, or false once the input is exhausted.
func (s *Scanner) Next() (Segment, bool) {
	for {
		if len(s.pending) > 0 {
			seg := s.pending[0]
			s.pending = s.pending[1:]
			return seg, true
		}
		if s.pos >= len(s.text) {
			return Segment{}, false
		}

		start, opener, closer := s.nextBlock()
		if start < 0 {
			prose := s.text[s.pos:]
			s.pos = len(s.text)
			if seg, ok := proseSegment(prose); ok {
				return seg, true
			}
			continue
		}
		if start > s.pos {
			prose := s.text[s.pos:start]
			s.pos = start
			if seg, ok := proseSegment(prose); ok {
				return seg, true
			}
			continue
		}

		bodyStart := start + len(opener)
		end := strings.Index(s.text[bodyStart:], closer)
		if end < 0 {
			raw := s.text[start:]
			s.pos = len(s.text)
			return malformed(start, raw, fmt.Sprintf("unterminated %s block", opener)), true
		}
		body := s.text[bodyStart : bodyStart+end]
		s.pos = bodyStart + end + len(closer)

		if opener == toolCodeOpen {
			s.pending = parseToolCode(body, bodyStart)
		} else {
			s.pending = []Segment{parseToolCallJSON(body, start)}
		}
	}
}

// nextBlock finds the earliest fragment opener at or after pos.
func (s *Scanner) nextBlock() (int, string, string) {
	rest := s.text[s.pos:]
	a := strings.Index(rest, toolCodeOpen)
	b := strings.Index(rest, toolCallOpen)
	switch {
	case a < 0 && b < 0:
		return -1, "", ""
	case b < 0 || (a >= 0 && a < b):
		return s.pos + a, toolCodeOpen, toolCodeClose
	default:
		return s.pos + b, toolCallOpen, toolCallClose
	}
}

func proseSegment(text string) (Segment, bool) {
	text = strings.TrimSpace(specialTokenRe.ReplaceAllString(text, ""))
	if text == "" {
		return Segment{}, false
	}
	return Segment{Kind: SegmentProse, Text: text}, true
}

func malformed(offset int, raw, msg string) Segment {
	snippet := raw
	if len(snippet) > 80 {
		snippet = snippet[:80]
	}
	return Segment{
		Kind:       SegmentMalformed,
		Text:       raw,
		Diagnostic: &Diagnostic{Kind: DiagParse, Message: msg, Offset: offset, Snippet: snippet},
	}
}

// parseToolCode handles a tool-code block holding one or more call
// expressions, one per line or separated by ';'.
func parseToolCode(body string, offset int) []Segment {
	var out []Segment
	p := &callParser{src: body}
	for {
		p.skipSeparators()
		if p.eof() {
			return out
		}
		at := p.pos
		frag, err := p.statement()
		if err != nil {
			line := p.skipLine(at)
			out = append(out, malformed(offset+at, strings.TrimSpace(line), err.Error()))
			continue
		}
		frag.Offset = offset + at
		out = append(out, Segment{Kind: SegmentTool, Fragment: frag})
	}
}

var errPositional = errors.New("positional arguments are not supported")

type callParser struct {
	src string
	pos int
}

func (p *callParser) eof() bool { return p.pos >= len(p.src) }

func (p *callParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *callParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

// skipSeparators also drops markdown code fences around the calls.
func (p *callParser) skipSeparators() {
	for {
		p.skipSpace()
		switch {
		case p.peek() == ';':
			p.pos++
		case strings.HasPrefix(p.src[p.pos:], "```"):
			p.skipLine(p.pos)
		default:
			return
		}
	}
}

// skipLine moves past the line containing from and returns its text.
func (p *callParser) skipLine(from int) string {
	nl := strings.IndexByte(p.src[from:], '\n')
	if nl < 0 {
		p.pos = len(p.src)
		return p.src[from:]
	}
	p.pos = from + nl + 1
	return p.src[from : from+nl]
}

func (p *callParser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c == '_' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *callParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

// statement parses `print(call)` or `call`.
func (p *callParser) statement() (*ToolFragment, error) {
	p.skipSpace()
	save := p.pos
	if p.ident() == "print" {
		p.skipSpace()
		if p.peek() == '(' {
			p.pos++
			frag, err := p.call()
			if err != nil {
				return nil, err
			}
			if err := p.expect(')'); err != nil {
				return nil, err
			}
			return frag, nil
		}
	}
	p.pos = save
	return p.call()
}

// call parses `name(k=v, ...)`.
func (p *callParser) call() (*ToolFragment, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return nil, fmt.Errorf("expected tool name at offset %d", p.pos)
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}
	frag := &ToolFragment{Name: name, Args: map[string]any{}}
	for {
		p.skipSpace()
		if p.peek() == ')' {
			p.pos++
			return frag, nil
		}
		if len(frag.ArgOrder) > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
			p.skipSpace()
			if p.peek() == ')' {
				p.pos++
				return frag, nil
			}
		}
		key := p.ident()
		p.skipSpace()
		if key == "" || p.peek() != '=' {
			return nil, errPositional
		}
		p.pos++
		val, err := p.value()
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", key, err)
		}
		if _, dup := frag.Args[key]; !dup {
			frag.ArgOrder = append(frag.ArgOrder, key)
		}
		frag.Args[key] = val
	}
}

func (p *callParser) value() (any, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		return p.quoted(c)
	case c == '{' || c == '[':
		return p.jsonValue()
	case c == 0:
		return nil, errors.New("unexpected end of input")
	}

	start := p.pos
	depth := 0
	for !p.eof() {
		c := p.src[p.pos]
		if depth == 0 && (c == ',' || c == ')') || c == '\n' {
			break
		}
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		}
		p.pos++
	}
	word := strings.TrimSpace(p.src[start:p.pos])
	if word == "" {
		return nil, errors.New("empty value")
	}
	return literal(word), nil
}

// literal interprets an unquoted token.
func literal(word string) any {
	switch word {
	case "true", "True":
		return true
	case "false", "False":
		return false
	case "None", "null", "nil":
		return nil
	}
	// 0123 is an identifier, not a number
	if leadingZero(word) {
		return word
	}
	if i, err := strconv.ParseInt(word, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(word, 64); err == nil {
		return f
	}
	return word
}

func leadingZero(word string) bool {
	word = strings.TrimLeft(word, "+-")
	return len(word) > 1 && word[0] == '0' && word[1] >= '0' && word[1] <= '9'
}

func (p *callParser) quoted(q byte) (any, error) {
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos++
			switch e := p.src[p.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
		case c == q:
			p.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
		p.pos++
	}
	return nil, errors.New("unterminated string")
}

// jsonValue consumes a balanced JSON object or array.
func (p *callParser) jsonValue() (any, error) {
	start := p.pos
	depth := 0
	var inStr byte
	for !p.eof() {
		c := p.src[p.pos]
		p.pos++
		if inStr != 0 {
			if c == '\\' {
				p.pos++
			} else if c == inStr {
				inStr = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inStr = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return decodeJSON(p.src[start:p.pos])
			}
		}
	}
	return nil, errors.New("unbalanced JSON value")
}

func decodeJSON(raw string) (any, error) {
	var v any
	if err := unmarshalNumbers([]byte(raw), &v); err != nil {
		if err := unmarshalNumbers([]byte(fixJSON(raw)), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}
	return normalizeNumbers(v), nil
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// normalizeNumbers turns json.Number into int64 or float64.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
	}
	return v
}

// fixJSON attempts to fix common JSON formatting issues.
func fixJSON(s string) string {
	s = requoteSingle(s)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return unquotedKeyRe.ReplaceAllString(s, `$1"$2":`)
}

// requoteSingle rewrites single-quoted keys and values as JSON strings.
// Apostrophes inside double-quoted strings are left alone, and inside a
// single-quoted string a quote only closes it when followed by a
// delimiter, so Turkish suffixes like Telekom'un survive.
func requoteSingle(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	var in byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch in {
		case '"':
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				in = 0
			}
		case '\'':
			switch {
			case c == '\\' && i+1 < len(s) && s[i+1] == '\'':
				i++
				b.WriteByte('\'')
			case c == '\\' && i+1 < len(s):
				i++
				b.WriteByte(c)
				b.WriteByte(s[i])
			case c == '"':
				b.WriteString(`\"`)
			case c == '\'' && closesQuote(s[i+1:]):
				b.WriteByte('"')
				in = 0
			default:
				b.WriteByte(c)
			}
		default:
			switch c {
			case '"':
				in = '"'
				b.WriteByte(c)
			case '\'':
				in = '\''
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

func closesQuote(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return rest == "" || strings.ContainsRune(",:}]", rune(rest[0]))
}

// parseToolCallJSON handles `<tool_call>{"name": ..., "arguments": {...}}</tool_call>`.
func parseToolCallJSON(body string, offset int) Segment {
	raw := strings.TrimSpace(body)
	var envelope struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		if err := json.Unmarshal([]byte(fixJSON(raw)), &envelope); err != nil {
			return malformed(offset, raw, fmt.Sprintf("invalid tool_call JSON: %v", err))
		}
	}
	if envelope.Name == "" {
		return malformed(offset, raw, "tool_call without a name")
	}

	args := envelope.Arguments
	var encoded string
	if json.Unmarshal(args, &encoded) == nil {
		args = json.RawMessage(encoded)
	}
	values, order, err := orderedObject(args)
	if err != nil {
		return malformed(offset, raw, fmt.Sprintf("tool_call %s: %v", envelope.Name, err))
	}
	return Segment{Kind: SegmentTool, Fragment: &ToolFragment{
		Name:     envelope.Name,
		Args:     values,
		ArgOrder: order,
		Offset:   offset,
	}}
}

// orderedObject decodes a JSON object keeping the key order.
func orderedObject(raw json.RawMessage) (map[string]any, []string, error) {
	values := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return values, nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.New("arguments must be an object")
	}
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("invalid arguments: %w", err)
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("invalid argument %s: %w", key, err)
		}
		if _, dup := values[key]; !dup {
			order = append(order, key)
		}
		values[key] = normalizeNumbers(v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return values, order, nil
}
