package engine

import (
	"sort"
)

// Environment holds the scalar and array variables of one run. A name lives
// in at most one of the two maps.
type Environment struct {
	scalars map[string]int32
	arrays  map[string][]int32
}

// NewEnvironment returns an empty environment.
func NewEnvironment() *Environment {
	return &Environment{
		scalars: make(map[string]int32),
		arrays:  make(map[string][]int32),
	}
}

// Scalar returns the value of a scalar variable.
func (e *Environment) Scalar(name string) (int32, bool) {
	v, ok := e.scalars[name]
	return v, ok
}

// Array returns a copy of an array variable.
func (e *Environment) Array(name string) ([]int32, bool) {
	arr, ok := e.arrays[name]
	if !ok {
		return nil, false
	}
	out := make([]int32, len(arr))
	copy(out, arr)
	return out, true
}

// Names returns every declared name in sorted order.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.scalars)+len(e.arrays))
	for name := range e.scalars {
		names = append(names, name)
	}
	for name := range e.arrays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Environment) setScalar(name string, v int32) {
	delete(e.arrays, name)
	e.scalars[name] = v
}

func (e *Environment) setArray(name string, values []int32) {
	delete(e.scalars, name)
	e.arrays[name] = values
}

func (e *Environment) lookup(name string, line int) (int32, error) {
	if v, ok := e.scalars[name]; ok {
		return v, nil
	}
	if _, ok := e.arrays[name]; ok {
		return 0, newError(KindTypeMismatch, line, "array '%s' used as a scalar value", name)
	}
	return 0, newError(KindUndefinedVariable, line, "undefined variable '%s'", name)
}

func (e *Environment) element(name string, index int32, line int) (*int32, error) {
	arr, ok := e.arrays[name]
	if !ok {
		if _, scalar := e.scalars[name]; scalar {
			return nil, newError(KindTypeMismatch, line, "'%s' is not an array", name)
		}
		return nil, newError(KindUndefinedVariable, line, "undefined array '%s'", name)
	}
	if index < 0 || int(index) >= len(arr) {
		return nil, newError(KindArrayIndexOutOfRange, line,
			"index %d out of range for array '%s' of length %d", index, name, len(arr))
	}
	return &arr[index], nil
}

// Bind performs one linear pass over the leading declarations of the program
// and returns the environment they produce. It stops at the first statement
// that is not a declaration. Array cells are charged against
// DefaultMaxArrayCells.
func Bind(prog *Program) (*Environment, error) {
	env := NewEnvironment()
	cells := 0
	for _, stmt := range prog.Body {
		switch s := stmt.(type) {
		case *DeclStmt, *ArrayDeclStmt:
			if arr, ok := s.(*ArrayDeclStmt); ok {
				if cells += arr.Size; cells > DefaultMaxArrayCells {
					return nil, newError(KindMemoryLimitExceeded, arr.Line,
						"array memory budget of %d cells exceeded", DefaultMaxArrayCells)
				}
			}
			if err := declare(stmt, env); err != nil {
				return nil, err
			}
		default:
			return env, nil
		}
	}
	return env, nil
}

// declare binds one declaration statement. Scalar initializers see names
// bound so far, including earlier declarators of the same statement.
func declare(stmt Stmt, env *Environment) error {
	switch s := stmt.(type) {
	case *DeclStmt:
		for _, d := range s.Decls {
			var v int32
			if d.Init != nil {
				var err error
				if v, err = Evaluate(d.Init, env); err != nil {
					return withLine(err, s.Line)
				}
			}
			env.setScalar(d.Name, v)
		}
	case *ArrayDeclStmt:
		values := make([]int32, s.Size)
		copy(values, s.Elems)
		env.setArray(s.Name, values)
	}
	return nil
}
