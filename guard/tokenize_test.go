package guard

import (
	"errors"
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "plain", raw: "ls -la", want: []string{"ls", "-la"}},
		{name: "extra_spaces", raw: "  ls \t -la  ", want: []string{"ls", "-la"}},
		{name: "double_quoted", raw: `echo "a b"`, want: []string{"echo", "a b"}},
		{name: "single_quoted", raw: `echo 'c d'`, want: []string{"echo", "c d"}},
		{name: "mixed_quotes", raw: `echo "a b" 'c d'`, want: []string{"echo", "a b", "c d"}},
		{name: "escaped_space", raw: `cat a\ b.txt`, want: []string{"cat", "a b.txt"}},
		{name: "escaped_quote_in_double", raw: `echo "say \"hi\""`, want: []string{"echo", `say "hi"`}},
		{name: "single_quote_no_escape", raw: `echo 'a\nb'`, want: []string{"echo", `a\nb`}},
		{name: "adjacent_quotes", raw: `echo a"b c"d`, want: []string{"echo", "ab cd"}},
		{name: "empty_quoted_arg", raw: `grep "" f`, want: []string{"grep", "", "f"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Tokenize(tc.raw)
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tc.raw, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Tokenize(%q) = %#v, want %#v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestTokenizeErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{name: "unterminated_single", raw: "echo 'abc", want: ErrUnterminatedQuote},
		{name: "unterminated_double", raw: `echo "abc`, want: ErrUnterminatedQuote},
		{name: "trailing_backslash", raw: `echo abc\`, want: ErrTrailingBackslash},
		{name: "trailing_backslash_in_double", raw: `echo "abc\`, want: ErrTrailingBackslash},
		{name: "empty", raw: "", want: ErrEmptyCommand},
		{name: "whitespace_only", raw: "   \t ", want: ErrEmptyCommand},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Tokenize(tc.raw)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Tokenize(%q) error = %v, want %v", tc.raw, err, tc.want)
			}
		})
	}
}

func TestCommandBase(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"ls -la", "ls"},
		{"/usr/bin/ls -la", "ls"},
		{"./bin/tool", "tool"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			cmd, err := Parse(tc.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tc.raw, err)
			}
			if got := cmd.Base(); got != tc.want {
				t.Fatalf("Base() = %q, want %q", got, tc.want)
			}
		})
	}
}
