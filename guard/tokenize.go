package guard

import (
	"errors"
	"strings"
)

var (
	ErrUnterminatedQuote = errors.New("unterminated quote")
	ErrTrailingBackslash = errors.New("trailing backslash")
	ErrEmptyCommand      = errors.New("empty command")
)

// Tokenize splits a raw command string into an argv-style token list. It is
// shell-syntax-aware but advisory only: the sandbox always spawns the
// resulting argv without a shell, so quoting here affects argument
// boundaries, not shell semantics.
//
// Single quotes take their content literally (no escapes inside). Inside
// double quotes a backslash escapes the next character, including '"'.
// Outside quotes a backslash escapes the next character.
func Tokenize(raw string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		started bool
	)

	flush := func() {
		if started {
			tokens = append(tokens, cur.String())
			cur.Reset()
			started = false
		}
	}

	i := 0
	for i < len(raw) {
		ch := raw[i]
		switch {
		case ch == ' ' || ch == '\t':
			flush()
			i++
		case ch == '\'':
			end := strings.IndexByte(raw[i+1:], '\'')
			if end < 0 {
				return nil, ErrUnterminatedQuote
			}
			cur.WriteString(raw[i+1 : i+1+end])
			started = true
			i += end + 2
		case ch == '"':
			i++
			started = true
			closed := false
			for i < len(raw) {
				c := raw[i]
				if c == '\\' {
					if i+1 >= len(raw) {
						return nil, ErrTrailingBackslash
					}
					cur.WriteByte(raw[i+1])
					i += 2
					continue
				}
				if c == '"' {
					closed = true
					i++
					break
				}
				cur.WriteByte(c)
				i++
			}
			if !closed {
				return nil, ErrUnterminatedQuote
			}
		case ch == '\\':
			if i+1 >= len(raw) {
				return nil, ErrTrailingBackslash
			}
			cur.WriteByte(raw[i+1])
			started = true
			i += 2
		default:
			cur.WriteByte(ch)
			started = true
			i++
		}
	}
	flush()

	if len(tokens) == 0 {
		return nil, ErrEmptyCommand
	}
	return tokens, nil
}

// Parse tokenizes raw and wraps the result as a Command value.
func Parse(raw string) (Command, error) {
	tokens, err := Tokenize(raw)
	if err != nil {
		return Command{Raw: raw}, err
	}
	return Command{Raw: raw, Tokens: tokens}, nil
}
