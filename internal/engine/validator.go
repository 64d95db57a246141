package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationResult is the outcome of the structural check. Diagnostic is empty
// when OK is true.
type ValidationResult struct {
	OK         bool   `json:"ok"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

var (
	headerPattern = regexp.MustCompile(`#\s*include\s*<stdio\.h>`)
	mainPattern   = regexp.MustCompile(`int\s+main\s*\(\s*(void)?\s*\)\s*\{`)
	mainNameRe    = regexp.MustCompile(`\bmain\s*\([^)]*\)`)
	returnPattern = regexp.MustCompile(`\breturn\s+-?\d+\s*;`)
)

// Validate runs the structural checks in order and stops at the first
// failure. It never executes anything.
func Validate(source string) ValidationResult {
	code := stripLiterals(source)

	if !strings.Contains(code, "#include <stdio.h>") && !strings.Contains(code, "#include<stdio.h>") {
		found := "no #include directive"
		if m := headerPattern.FindString(code); m != "" {
			found = m
		} else if line := firstDirective(source); line != "" {
			found = line
		}
		return failed("Missing required header file.",
			"#include <stdio.h>",
			found,
			"Add '#include <stdio.h>' at the top of your program.")
	}

	loc := mainPattern.FindStringIndex(code)
	if loc == nil {
		found := "no main function"
		if m := mainNameRe.FindString(code); m != "" {
			found = m
		}
		return failed("Invalid or missing main function.",
			"int main() {",
			found,
			"Your program must have a main function with signature 'int main() {'")
	}

	if !returnPattern.MatchString(code[loc[1]:]) {
		return failed("Missing return statement in main function.",
			"return 0;",
			"no 'return <integer>;' inside main",
			"Add 'return 0;' at the end of your main function.")
	}

	if open, closed := strings.Count(code, "{"), strings.Count(code, "}"); open != closed {
		return failed("Mismatched braces.",
			"every '{' matched by a '}'",
			fmt.Sprintf("%d opening braces '{' and %d closing braces '}'", open, closed),
			"Check that every '{' has a matching '}'")
	}

	if open, closed := strings.Count(code, "("), strings.Count(code, ")"); open != closed {
		return failed("Mismatched parentheses.",
			"every '(' matched by a ')'",
			fmt.Sprintf("%d opening '(' and %d closing ')'", open, closed),
			"Check that every '(' has a matching ')'")
	}

	return ValidationResult{OK: true}
}

func failed(what, expected, found, fix string) ValidationResult {
	return ValidationResult{
		Diagnostic: fmt.Sprintf("Compilation Error: %s\n\nExpected: %s\nFound: %s\nFix: %s", what, expected, found, fix),
	}
}

func firstDirective(code string) string {
	for _, line := range strings.Split(code, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "#") {
			return trimmed
		}
	}
	return ""
}

// stripLiterals blanks out comments and the bodies of string and character
// literals so that punctuation inside them is not counted. Line breaks are
// kept.
func stripLiterals(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			b.WriteString("  ")
			i += 2
			for i < len(src) && !(src[i] == '*' && i+1 < len(src) && src[i+1] == '/') {
				blank(&b, src[i])
				i++
			}
			if i < len(src) {
				b.WriteString("  ")
				i++
			}
		case c == '"' || c == '\'':
			b.WriteByte(c)
			i++
			for i < len(src) && src[i] != c && src[i] != '\n' {
				if src[i] == '\\' && i+1 < len(src) && src[i+1] != '\n' {
					b.WriteByte(' ')
					i++
				}
				b.WriteByte(' ')
				i++
			}
			if i < len(src) {
				b.WriteByte(src[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func blank(b *strings.Builder, c byte) {
	if c == '\n' {
		b.WriteByte('\n')
		return
	}
	b.WriteByte(' ')
}
