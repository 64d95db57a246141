// Package workspace keeps the program being edited in the CLI and runs it
// with the in-process engine.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"codelab/internal/engine"
)

var (
	ErrNoSource   = errors.New("no program loaded")
	ErrNoExpected = errors.New("no expected output set")
)

// Workspace is the local, single-user state of a CLI session.
type Workspace struct {
	engine      *engine.Engine
	source      string
	path        string
	expected    string
	hasExpected bool
}

func New(limits engine.Limits) *Workspace {
	return &Workspace{engine: engine.New(limits)}
}

func (w *Workspace) Limits() engine.Limits {
	return w.engine.Limits()
}

// SetLimits replaces the engine. Zero fields keep their current value.
func (w *Workspace) SetLimits(limits engine.Limits) {
	current := w.engine.Limits()
	if limits.MaxLoopIterations <= 0 {
		limits.MaxLoopIterations = current.MaxLoopIterations
	}
	if limits.MaxOutputBytes <= 0 {
		limits.MaxOutputBytes = current.MaxOutputBytes
	}
	if limits.MaxArrayCells <= 0 {
		limits.MaxArrayCells = current.MaxArrayCells
	}
	w.engine = engine.New(limits)
}

// LoadFile reads a program from disk.
func (w *Workspace) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read source failed: %w", err)
	}
	w.SetSource(string(data), path)
	return nil
}

func (w *Workspace) SetSource(source, origin string) {
	w.source = source
	w.path = origin
}

func (w *Workspace) Source() (string, string) {
	return w.source, w.path
}

func (w *Workspace) SetExpected(expected string) {
	w.expected = expected
	w.hasExpected = true
}

func (w *Workspace) Expected() (string, bool) {
	return w.expected, w.hasExpected
}

func (w *Workspace) Validate() (engine.ValidationResult, error) {
	if w.source == "" {
		return engine.ValidationResult{}, ErrNoSource
	}
	return engine.Validate(w.source), nil
}

func (w *Workspace) Run() (engine.ExecutionResult, error) {
	if w.source == "" {
		return engine.ExecutionResult{}, ErrNoSource
	}
	return w.engine.RunProgram(w.source), nil
}

func (w *Workspace) Judge() (engine.ExecutionResult, bool, error) {
	if w.source == "" {
		return engine.ExecutionResult{}, false, ErrNoSource
	}
	if !w.hasExpected {
		return engine.ExecutionResult{}, false, ErrNoExpected
	}
	res, passed := w.engine.Check(w.source, w.expected)
	return res, passed, nil
}

// Binding is one declared variable after the leading declarations of main
// have been evaluated.
type Binding struct {
	Name   string
	Scalar int32
	Array  []int32
	IsArr  bool
}

// Env binds the program's leading declarations without running it.
func (w *Workspace) Env() ([]Binding, error) {
	if w.source == "" {
		return nil, ErrNoSource
	}
	prog, err := engine.Parse(w.source)
	if err != nil {
		return nil, err
	}
	env, err := engine.Bind(prog)
	if err != nil {
		return nil, err
	}
	names := env.Names()
	out := make([]Binding, 0, len(names))
	for _, name := range names {
		if arr, ok := env.Array(name); ok {
			out = append(out, Binding{Name: name, Array: arr, IsArr: true})
			continue
		}
		v, _ := env.Scalar(name)
		out = append(out, Binding{Name: name, Scalar: v})
	}
	return out, nil
}

func (b Binding) String() string {
	if !b.IsArr {
		return fmt.Sprintf("int %s = %d", b.Name, b.Scalar)
	}
	parts := make([]string, len(b.Array))
	for i, v := range b.Array {
		parts[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("int %s[%d] = {%s}", b.Name, len(b.Array), strings.Join(parts, ", "))
}

// Render writes a run the way a console would show it: program output first,
// then a status line and any diagnostic.
func Render(w io.Writer, res engine.ExecutionResult) {
	if res.Output != "" {
		_, _ = io.WriteString(w, res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			_, _ = io.WriteString(w, "\n")
		}
	}
	if res.Diagnostic != "" {
		_, _ = fmt.Fprintln(w, res.Diagnostic)
	}
	_, _ = fmt.Fprintf(w, "--- %s in %.2f ms (%d iterations, exit %d)\n",
		res.Status, res.ElapsedTimeMs, res.Iterations, res.ExitCode)
}

// Verdict is the one-word judge outcome.
func Verdict(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}
