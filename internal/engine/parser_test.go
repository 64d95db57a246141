package engine_test

import (
	"errors"
	"strings"
	"testing"

	"codelab/internal/engine"
)

func TestParseStructure(t *testing.T) {
	prog, err := engine.Parse(program(`int a = 1, b, arr[] = {1, -2, 3};
    for (int i = 0; i < 3; i++) {
        if (arr[i] > 0) { a += arr[i]; } else { b--; }
    }
    while (a > 0) a--;
    printf("%d %s", a, "done");`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// a,b decl + array decl + for + while + printf + return
	if len(prog.Body) != 6 {
		t.Fatalf("unexpected statement count %d", len(prog.Body))
	}
	decl, ok := prog.Body[0].(*engine.DeclStmt)
	if !ok || len(decl.Decls) != 2 || decl.Decls[1].Init != nil {
		t.Fatalf("unexpected first statement %#v", prog.Body[0])
	}
	arr, ok := prog.Body[1].(*engine.ArrayDeclStmt)
	if !ok || arr.Size != 3 || arr.Elems[1] != -2 {
		t.Fatalf("unexpected array declaration %#v", prog.Body[1])
	}
	loop, ok := prog.Body[2].(*engine.ForStmt)
	if !ok || len(loop.Init) != 1 || len(loop.Post) != 1 || len(loop.Body) != 1 {
		t.Fatalf("unexpected for statement %#v", prog.Body[2])
	}
	if _, ok := loop.Body[0].(*engine.IfStmt); !ok {
		t.Fatalf("expected if inside loop body")
	}
	ps, ok := prog.Body[4].(*engine.PrintStmt)
	if !ok || len(ps.Args) != 2 || ps.Line != 9 {
		t.Fatalf("unexpected print statement %#v", prog.Body[4])
	}
	if _, ok := prog.Body[5].(*engine.ReturnStmt); !ok {
		t.Fatalf("expected trailing return")
	}
}

func TestParsePrecedence(t *testing.T) {
	prog, err := engine.Parse(program(`int x = 1 + 2 * 3 - 4 / 2;`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	env, err := engine.Bind(prog)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if v, _ := env.Scalar("x"); v != 5 {
		t.Fatalf("x = %d, want 5", v)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"pointer", `int *p;`, "expected an identifier"},
		{"call in expression", `int a = abs(2);`, "function call 'abs'"},
		{"string in expression", `int a = "x";`, "string literal is only allowed"},
		{"increment in expression", `int a = 0; int b = a++ + 1;`, "expected ';'"},
		{"array without size", `int a[];`, "needs a size"},
		{"too many initializers", `int a[2] = {1, 2, 3};`, "too many initializers"},
		{"array from variables", `int n = 1; int a[] = {n};`, "must be integer literals"},
		{"switch", `switch (1) {}`, "unsupported statement 'switch'"},
		{"dangling else", `else {}`, "without a matching 'if'"},
		{"continue outside loop", `continue;`, "not within a loop"},
		{"reserved name", `int for = 1;`, "reserved word"},
		{"unterminated string", "printf(\"abc);", "unterminated string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Parse(program(tt.body))
			if err == nil {
				t.Fatalf("expected parse error")
			}
			var ee *engine.Error
			if !errors.As(err, &ee) || ee.Kind != engine.KindStructural {
				t.Fatalf("unexpected error type %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseRejectsOtherFunctions(t *testing.T) {
	src := "#include <stdio.h>\nint helper() { return 1; }\nint main() {\n  return 0;\n}\n"
	_, err := engine.Parse(src)
	if err == nil || !strings.Contains(err.Error(), "function 'helper' is not supported") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestBind(t *testing.T) {
	prog, err := engine.Parse(program(`int a = 2;
    int b = a * 10;
    int c;
    int arr[4] = {7, 8};
    int a = 9;
    printf("%d", a);
    int late = 1;`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	env, err := engine.Bind(prog)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if v, _ := env.Scalar("a"); v != 9 {
		t.Fatalf("later declaration should overwrite, a = %d", v)
	}
	if v, _ := env.Scalar("b"); v != 20 {
		t.Fatalf("b = %d, want 20", v)
	}
	if v, ok := env.Scalar("c"); !ok || v != 0 {
		t.Fatalf("uninitialized scalar should default to 0")
	}
	arr, ok := env.Array("arr")
	if !ok || len(arr) != 4 || arr[0] != 7 || arr[3] != 0 {
		t.Fatalf("unexpected array %v", arr)
	}
	if _, ok := env.Scalar("late"); ok {
		t.Fatalf("binding stops at the first non-declaration")
	}
	if got := strings.Join(env.Names(), ","); got != "a,arr,b,c" {
		t.Fatalf("unexpected names %s", got)
	}
}

func TestParseArrayDeclaration(t *testing.T) {
	prog, err := engine.Parse(program(`int a[65536] = {1, 2};`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	arr := prog.Body[0].(*engine.ArrayDeclStmt)
	if arr.Size != 65536 || len(arr.Elems) != 2 {
		t.Fatalf("expected only the listed initializers, got size %d with %d elems", arr.Size, len(arr.Elems))
	}

	_, err = engine.Parse(program(`int big[65537];`))
	if err == nil || !strings.Contains(err.Error(), "must be between 1 and 65536") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestBindArrayBudget(t *testing.T) {
	body := strings.Repeat("int a[65536];\n", engine.DefaultMaxArrayCells/65536+1)
	prog, err := engine.Parse(program(body))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	_, err = engine.Bind(prog)
	var ee *engine.Error
	if !errors.As(err, &ee) || ee.Kind != engine.KindMemoryLimitExceeded {
		t.Fatalf("expected memory budget error, got %v", err)
	}
}

func TestBindForwardReference(t *testing.T) {
	prog, err := engine.Parse(program(`int a = b + 1; int b = 2;`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	_, err = engine.Bind(prog)
	var ee *engine.Error
	if !errors.As(err, &ee) || ee.Kind != engine.KindUndefinedVariable {
		t.Fatalf("expected undefined variable, got %v", err)
	}
}
