// Package engine validates, simulates and judges programs written in a small
// subset of C. It runs entirely in memory: no compiler, no process, no I/O.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	appErr "codelab/pkg/errors"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusAccepted     Status = "Accepted"
	StatusCompileError Status = "Compile Error"
	StatusRuntimeError Status = "Runtime Error"
)

const (
	DefaultMaxLoopIterations = 100000
	DefaultMaxOutputBytes    = 64 * 1024
	// Cells are counted per declaration executed, so a declaration inside a
	// loop is charged on every pass.
	DefaultMaxArrayCells     = 1 << 20
)

// Limits bounds the cost of one run. Zero fields fall back to the defaults.
type Limits struct {
	MaxLoopIterations int `yaml:"maxLoopIterations" json:"maxLoopIterations"`
	MaxOutputBytes    int `yaml:"maxOutputBytes" json:"maxOutputBytes"`
	MaxArrayCells     int `yaml:"maxArrayCells" json:"maxArrayCells"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxLoopIterations: DefaultMaxLoopIterations,
		MaxOutputBytes:    DefaultMaxOutputBytes,
		MaxArrayCells:     DefaultMaxArrayCells,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxLoopIterations <= 0 {
		l.MaxLoopIterations = DefaultMaxLoopIterations
	}
	if l.MaxOutputBytes <= 0 {
		l.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if l.MaxArrayCells <= 0 {
		l.MaxArrayCells = DefaultMaxArrayCells
	}
	return l
}

// ExecutionResult is produced fresh for every run. Output is empty whenever
// the run failed.
type ExecutionResult struct {
	Output        string    `json:"output"`
	Diagnostic    string    `json:"diagnostic,omitempty"`
	ElapsedTimeMs float64   `json:"elapsedTimeMs"`
	Status        Status    `json:"status"`
	ErrorKind     ErrorKind `json:"errorKind,omitempty"`
	Warnings      []string  `json:"warnings,omitempty"`
	ExitCode      int32     `json:"exitCode"`
	Iterations    int       `json:"iterations"`
}

// Succeeded reports whether the program ran to completion.
func (r ExecutionResult) Succeeded() bool {
	return r.Status == StatusAccepted
}

// Code returns the platform error code for the result.
func (r ExecutionResult) Code() appErr.ErrorCode {
	return r.ErrorKind.Code()
}

// Engine runs programs under fixed limits. It holds no per-run state and is
// safe for concurrent use.
type Engine struct {
	limits Limits
}

// New creates an engine.
func New(limits Limits) *Engine {
	return &Engine{limits: limits.withDefaults()}
}

// Limits returns the effective limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

// RunProgram validates and simulates source. It never panics; every failure
// is reported through the result's Diagnostic.
func (e *Engine) RunProgram(source string) (res ExecutionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = ExecutionResult{
				Status:     StatusRuntimeError,
				ErrorKind:  KindInternal,
				Diagnostic: fmt.Sprintf("Runtime Error: internal engine failure: %v", r),
			}
		}
		res.ElapsedTimeMs = float64(time.Since(start).Microseconds()) / 1000
	}()

	if v := Validate(source); !v.OK {
		return ExecutionResult{Status: StatusCompileError, ErrorKind: KindStructural, Diagnostic: v.Diagnostic}
	}
	prog, err := Parse(source)
	if err != nil {
		return ExecutionResult{
			Status:     StatusCompileError,
			ErrorKind:  KindStructural,
			Diagnostic: "Compilation Error: " + err.Error(),
		}
	}

	x := NewExecutor(e.limits)
	if err := x.Execute(prog.Body, NewEnvironment()); err != nil {
		kind := KindInternal
		var ee *Error
		if errors.As(err, &ee) {
			kind = ee.Kind
		}
		return ExecutionResult{
			Status:     StatusRuntimeError,
			ErrorKind:  kind,
			Diagnostic: fmt.Sprintf("Runtime Error: %s (%s)", err.Error(), kind),
			Iterations: x.Iterations(),
		}
	}

	res = ExecutionResult{
		Output:     x.Output(),
		Status:     StatusAccepted,
		Warnings:   x.Warnings(),
		ExitCode:   x.ExitCode(),
		Iterations: x.Iterations(),
	}
	if len(res.Warnings) > 0 {
		lines := make([]string, len(res.Warnings))
		for i, w := range res.Warnings {
			lines[i] = "Warning: " + w
		}
		res.Diagnostic = strings.Join(lines, "\n")
	}
	return res
}

// Check runs source and judges its output against expected. A run that did
// not complete never passes.
func (e *Engine) Check(source, expected string) (ExecutionResult, bool) {
	res := e.RunProgram(source)
	return res, res.Succeeded() && Judge(res.Output, expected)
}
