package manifest

import "strings"

// keyOffense is one duplicate-key finding from scanDuplicateKeys.
type keyOffense struct {
	Line int
	Key  string
}

type scopeFrame struct {
	isObject bool
	keys     map[string]bool
}

// scanDuplicateKeys walks raw JSON text and flags any object scope that
// redeclares a property name, regardless of nesting depth. It runs before
// the document is parsed, since encoding/json silently keeps the last
// occurrence of a duplicate key rather than erroring.
func scanDuplicateKeys(data []byte) []keyOffense {
	var offenses []keyOffense
	var stack []*scopeFrame
	line := 1
	i := 0
	n := len(data)

	readString := func(start int) (string, int) {
		var sb strings.Builder
		j := start + 1
		for j < n {
			c := data[j]
			if c == '\\' && j+1 < n {
				sb.WriteByte(c)
				sb.WriteByte(data[j+1])
				j += 2
				continue
			}
			if c == '"' {
				j++
				break
			}
			if c == '\n' {
				line++
			}
			sb.WriteByte(c)
			j++
		}
		return sb.String(), j
	}

	for i < n {
		c := data[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == '{':
			stack = append(stack, &scopeFrame{isObject: true, keys: map[string]bool{}})
			i++
		case c == '[':
			stack = append(stack, &scopeFrame{isObject: false})
			i++
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			i++
		case c == '"':
			keyLine := line
			str, next := readString(i)
			i = next
			if len(stack) == 0 || !stack[len(stack)-1].isObject {
				continue
			}
			j := i
			// Newlines skipped here are counted when the main loop reaches them.
			for j < n && (data[j] == ' ' || data[j] == '\t' || data[j] == '\r' || data[j] == '\n') {
				j++
			}
			if j >= n || data[j] != ':' {
				continue
			}
			frame := stack[len(stack)-1]
			if frame.keys[str] {
				offenses = append(offenses, keyOffense{Line: keyLine, Key: str})
			} else {
				frame.keys[str] = true
			}
		default:
			i++
		}
	}
	return offenses
}
