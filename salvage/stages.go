package salvage

import (
	"regexp"
	"strings"
)

// maxCommaPasses bounds StripTrailingCommas.
const maxCommaPasses = 32

const fence = "```"

// ExtractFence returns the contents of the first fenced code block that holds
// JSON-looking text. A language tag on the opening fence is skipped and an
// unterminated fence yields everything after it. Text without a usable fence is
// returned trimmed.
func ExtractFence(s string) string {
	rest := s
	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			return strings.TrimSpace(s)
		}
		body := rest[open+len(fence):]

		// Skip the info string (```json, ```JSON5 ...) up to the first newline.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
			body = body[nl+1:]
		} else if nl < 0 {
			body = strings.TrimLeft(body, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-")
		}

		end := strings.Index(body, fence)
		if end < 0 {
			return strings.TrimSpace(body)
		}
		content := body[:end]
		if strings.ContainsAny(content, "{[") {
			return strings.TrimSpace(content)
		}
		rest = body[end+len(fence):]
	}
}

// ExtractEnvelope returns the greedy JSON envelope: first '{' to last '}', or
// first '[' to last ']' when an array opens first. Text with no closer after the
// opener is returned from the opener on so truncation repair can finish it.
func ExtractEnvelope(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return strings.TrimSpace(s)
	}

	var end int
	if s[start] == '[' {
		end = strings.LastIndexByte(s, ']')
		if end < start {
			end = strings.LastIndexByte(s, '}')
		}
	} else {
		end = strings.LastIndexByte(s, '}')
	}

	if end < start {
		return strings.TrimSpace(s[start:])
	}
	return s[start : end+1]
}

// StripTrailingCommas removes commas that directly precede a closing '}' or ']'
// and '//' line comments, ignoring anything inside string literals. It repeats
// until nothing changes.
func StripTrailingCommas(s string) string {
	for range maxCommaPasses {
		next := stripCommasOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func stripCommasOnce(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '/':
			if i+1 < len(s) && s[i+1] == '/' {
				nl := strings.IndexByte(s[i:], '\n')
				if nl < 0 {
					i = len(s)
				} else {
					i += nl - 1
				}
				continue
			}
		case ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// RepairTruncation closes a document that was cut off. It cuts back to the last
// point where a complete value (or an opener) ended, dropping an unterminated
// string, a dangling key, colon or comma, and a partial literal, then appends the
// missing closers innermost first. Documents that are already closed are
// returned unchanged.
func RepairTruncation(s string) string {
	type frame struct {
		open    byte
		wantKey bool
	}

	var (
		stack     []frame
		safe      = -1
		safeStack []frame
		inString  bool
		escaped   bool
		strKey    bool
	)

	markSafe := func(pos int) {
		safe = pos
		safeStack = append(safeStack[:0], stack...)
	}

	// valueDone records a completed value ending at pos.
	valueDone := func(pos int) {
		if n := len(stack); n > 0 && stack[n-1].open == '{' {
			stack[n-1].wantKey = false
		}
		markSafe(pos)
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				if !strKey {
					valueDone(i + 1)
				}
			}
			continue
		}

		switch {
		case isSpace(c):
		case c == '"':
			inString = true
			n := len(stack)
			strKey = n > 0 && stack[n-1].open == '{' && stack[n-1].wantKey
		case c == '{' || c == '[':
			stack = append(stack, frame{open: c, wantKey: c == '{'})
			markSafe(i + 1)
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			valueDone(i + 1)
		case c == ':':
			if n := len(stack); n > 0 && stack[n-1].open == '{' {
				stack[n-1].wantKey = false
			}
		case c == ',':
			if n := len(stack); n > 0 && stack[n-1].open == '{' {
				stack[n-1].wantKey = true
			}
		default:
			j := i
			for j < len(s) && !isSpace(s[j]) && !strings.ContainsRune(`{}[]:,"`, rune(s[j])) {
				j++
			}
			if j < len(s) || completeLiteral(s[i:j]) {
				valueDone(j)
			}
			i = j - 1
		}
	}

	if !inString && len(stack) == 0 {
		return s
	}
	if safe < 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s[:safe])
	for i := len(safeStack) - 1; i >= 0; i-- {
		if safeStack[i].open == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// completeLiteral reports whether a literal at the very end of the input can be
// kept: a full keyword or a number that does not end mid-exponent or mid-fraction.
func completeLiteral(lit string) bool {
	switch lit {
	case "true", "false", "null":
		return true
	case "":
		return false
	}
	last := lit[len(lit)-1]
	if last < '0' || last > '9' {
		return false
	}
	first := lit[0]
	return first == '-' || (first >= '0' && first <= '9')
}

// SliceArrayField returns the array value of the first "field": [...] in s,
// including the brackets. An unterminated array runs to the end of s. It returns
// "" when the field is absent.
func SliceArrayField(s, field string) string {
	if field == "" {
		return ""
	}
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*\[`)
	loc := re.FindStringIndex(s)
	if loc == nil {
		return ""
	}
	start := loc[1] - 1
	if end := matchingClose(s, start); end >= 0 {
		return s[start : end+1]
	}
	return s[start:]
}

// ObjectFragments returns every balanced {...} fragment of s in order of
// appearance, nested fragments included. Unbalanced openers are skipped.
func ObjectFragments(s string) []string {
	spans := objectSpans(s)
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, s[sp[0]:sp[1]])
	}
	return out
}

// objectSpans returns the [start, end) offsets of every balanced object.
func objectSpans(s string) [][2]int {
	var out [][2]int
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if end := matchingClose(s, i); end >= 0 {
				out = append(out, [2]int{i, end + 1})
			}
		}
	}
	return out
}

// matchingClose returns the index of the bracket closing the one at open, or -1.
func matchingClose(s string, open int) int {
	depth := 0
	inString, escaped := false, false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
