package engine_test

import (
	"strings"
	"testing"

	"codelab/internal/engine"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string // substrings of the diagnostic; nil means OK
	}{
		{
			name:   "valid",
			source: "#include <stdio.h>\nint main() {\n  printf(\"hi\");\n  return 0;\n}\n",
		},
		{
			name:   "no space header and void main",
			source: "#include<stdio.h>\nint main(void){return 0;}",
		},
		{
			name:   "missing header",
			source: "int main() {\n  return 0;\n}\n",
			want:   []string{"Compilation Error: Missing required header file.", "Expected: #include <stdio.h>", "Found: no #include directive"},
		},
		{
			name:   "wrong header",
			source: "#include <stdlib.h>\nint main() {\n  return 0;\n}\n",
			want:   []string{"Missing required header file", "Found: #include <stdlib.h>"},
		},
		{
			name:   "main with parameters",
			source: "#include <stdio.h>\nint main(int argc) {\n  return 0;\n}\n",
			want:   []string{"Invalid or missing main function", "Expected: int main() {", "Found: main(int argc)"},
		},
		{
			name:   "missing return",
			source: "#include <stdio.h>\nint main() {\n  printf(\"x\");\n}\n",
			want:   []string{"Missing return statement", "Expected: return 0;"},
		},
		{
			name:   "return only inside a string",
			source: "#include <stdio.h>\nint main() {\n  printf(\"return 0;\");\n}\n",
			want:   []string{"Missing return statement"},
		},
		{
			name:   "unbalanced braces",
			source: "#include <stdio.h>\nint main() {\n  if (1) {\n  return 0;\n}\n",
			want:   []string{"Mismatched braces", "Found: 2 opening braces '{' and 1 closing braces '}'"},
		},
		{
			name:   "unbalanced parentheses",
			source: "#include <stdio.h>\nint main() {\n  printf((\"x\");\n  return 0;\n}\n",
			want:   []string{"Mismatched parentheses", "Found: 3 opening '(' and 2 closing ')'"},
		},
		{
			name:   "braces inside literals and comments are ignored",
			source: "#include <stdio.h>\n/* { */\nint main() {\n  printf(\"}}\"); // (\n  int c = '{';\n  return 0;\n}\n",
		},
		{
			name:   "header check runs before main check",
			source: "void start() {}",
			want:   []string{"Missing required header file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Validate(tt.source)
			if tt.want == nil {
				if !res.OK {
					t.Fatalf("expected ok, got %q", res.Diagnostic)
				}
				return
			}
			if res.OK {
				t.Fatalf("expected failure")
			}
			for _, w := range tt.want {
				if !strings.Contains(res.Diagnostic, w) {
					t.Fatalf("diagnostic %q does not contain %q", res.Diagnostic, w)
				}
			}
			if strings.Count(res.Diagnostic, "Compilation Error") != 1 {
				t.Fatalf("expected a single diagnostic, got %q", res.Diagnostic)
			}
		})
	}
}
