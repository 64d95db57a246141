package engine

import (
	"fmt"
	"strings"
)

type controlFlow int

const (
	flowNormal controlFlow = iota
	flowBreak
	flowContinue
	flowReturn
)

// Executor runs a statement tree in program order. An Executor belongs to a
// single run and is not safe for concurrent use.
type Executor struct {
	limits     Limits
	out        strings.Builder
	warnings   []string
	iterations int
	cells      int
	exitCode   int32
}

// NewExecutor returns an executor bounded by limits.
func NewExecutor(limits Limits) *Executor {
	return &Executor{limits: limits.withDefaults()}
}

// Output returns everything printed so far.
func (x *Executor) Output() string { return x.out.String() }

// Warnings returns the formatting warnings collected so far.
func (x *Executor) Warnings() []string { return x.warnings }

// Iterations returns the number of loop iterations spent.
func (x *Executor) Iterations() int { return x.iterations }

// ExitCode returns the value of the executed return statement, or 0.
func (x *Executor) ExitCode() int32 { return x.exitCode }

// Execute runs stmts against env. A return statement stops execution without
// error.
func (x *Executor) Execute(stmts []Stmt, env *Environment) error {
	_, err := x.block(stmts, env)
	return err
}

func (x *Executor) block(stmts []Stmt, env *Environment) (controlFlow, error) {
	for _, stmt := range stmts {
		flow, err := x.exec(stmt, env)
		if err != nil {
			return flowNormal, withLine(err, stmt.Pos())
		}
		if flow != flowNormal {
			return flow, nil
		}
	}
	return flowNormal, nil
}

func (x *Executor) exec(stmt Stmt, env *Environment) (controlFlow, error) {
	switch s := stmt.(type) {
	case *DeclStmt:
		return flowNormal, declare(s, env)
	case *ArrayDeclStmt:
		if err := x.allocate(s.Size, s.Line); err != nil {
			return flowNormal, err
		}
		return flowNormal, declare(s, env)
	case *AssignStmt:
		return flowNormal, x.assign(s, env)
	case *ForStmt:
		return x.forLoop(s, env)
	case *WhileStmt:
		return x.whileLoop(s, env)
	case *IfStmt:
		for _, br := range s.Branches {
			ok, err := EvaluateCondition(br.Cond, env)
			if err != nil {
				return flowNormal, err
			}
			if ok {
				return x.block(br.Body, env)
			}
		}
		return x.block(s.Else, env)
	case *PrintStmt:
		return flowNormal, x.print(s, env)
	case *ReturnStmt:
		if s.Value != nil {
			v, err := Evaluate(s.Value, env)
			if err != nil {
				return flowNormal, err
			}
			x.exitCode = v
		}
		return flowReturn, nil
	case *BreakStmt:
		return flowBreak, nil
	case *ContinueStmt:
		return flowContinue, nil
	}
	return flowNormal, newError(KindStructural, stmt.Pos(), "unsupported statement %T", stmt)
}

// assign evaluates the right side against the current environment before
// writing.
func (x *Executor) assign(s *AssignStmt, env *Environment) error {
	value, err := Evaluate(s.Value, env)
	if err != nil {
		return err
	}

	if s.Target.Index == nil {
		current, err := env.lookup(s.Target.Name, s.Line)
		if err != nil {
			return err
		}
		result, err := combine(s.Op, current, value, s.Line)
		if err != nil {
			return err
		}
		env.scalars[s.Target.Name] = result
		return nil
	}

	idx, err := Evaluate(s.Target.Index, env)
	if err != nil {
		return err
	}
	slot, err := env.element(s.Target.Name, idx, s.Line)
	if err != nil {
		return err
	}
	result, err := combine(s.Op, *slot, value, s.Line)
	if err != nil {
		return err
	}
	*slot = result
	return nil
}

func combine(op string, current, value int32, line int) (int32, error) {
	if op == "=" {
		return value, nil
	}
	return applyOp(strings.TrimSuffix(op, "="), current, value, line)
}

// tick charges one iteration against the run-wide loop budget.
func (x *Executor) tick(line int) error {
	x.iterations++
	if x.iterations > x.limits.MaxLoopIterations {
		return newError(KindLoopBudgetExceeded, line,
			"loop iteration budget of %d exceeded", x.limits.MaxLoopIterations)
	}
	return nil
}

// allocate charges n array cells against the run-wide memory budget.
func (x *Executor) allocate(n, line int) error {
	x.cells += n
	if x.cells > x.limits.MaxArrayCells {
		return newError(KindMemoryLimitExceeded, line,
			"array memory budget of %d cells exceeded", x.limits.MaxArrayCells)
	}
	return nil
}

func (x *Executor) forLoop(s *ForStmt, env *Environment) (controlFlow, error) {
	if _, err := x.block(s.Init, env); err != nil {
		return flowNormal, err
	}
	for {
		if s.Cond != nil {
			ok, err := EvaluateCondition(s.Cond, env)
			if err != nil {
				return flowNormal, err
			}
			if !ok {
				return flowNormal, nil
			}
		}
		if err := x.tick(s.Line); err != nil {
			return flowNormal, err
		}
		flow, err := x.block(s.Body, env)
		if err != nil {
			return flowNormal, err
		}
		switch flow {
		case flowBreak:
			return flowNormal, nil
		case flowReturn:
			return flowReturn, nil
		}
		if _, err := x.block(s.Post, env); err != nil {
			return flowNormal, err
		}
	}
}

func (x *Executor) whileLoop(s *WhileStmt, env *Environment) (controlFlow, error) {
	first := s.PostCheck
	for {
		if !first {
			ok, err := EvaluateCondition(s.Cond, env)
			if err != nil {
				return flowNormal, err
			}
			if !ok {
				return flowNormal, nil
			}
		}
		first = false
		if err := x.tick(s.Line); err != nil {
			return flowNormal, err
		}
		flow, err := x.block(s.Body, env)
		if err != nil {
			return flowNormal, err
		}
		switch flow {
		case flowBreak:
			return flowNormal, nil
		case flowReturn:
			return flowReturn, nil
		}
	}
}

func (x *Executor) print(s *PrintStmt, env *Environment) error {
	text, warnings, err := Format(s.Format, s.Args, env)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		x.warnings = append(x.warnings, fmt.Sprintf("line %d: %s", s.Line, w))
	}
	if x.out.Len()+len(text) > x.limits.MaxOutputBytes {
		return newError(KindOutputLimitExceeded, s.Line,
			"output exceeds the limit of %d bytes", x.limits.MaxOutputBytes)
	}
	x.out.WriteString(text)
	return nil
}
