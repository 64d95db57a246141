package engine

// Evaluate computes an integer expression against env. It never writes to
// env. Arithmetic wraps like a 32-bit C int; division truncates toward zero.
func Evaluate(expr Expr, env *Environment) (int32, error) {
	switch e := expr.(type) {
	case *IntLit:
		return e.Value, nil
	case *VarRef:
		return env.lookup(e.Name, e.Line)
	case *IndexExpr:
		idx, err := Evaluate(e.Index, env)
		if err != nil {
			return 0, err
		}
		slot, err := env.element(e.Name, idx, e.Line)
		if err != nil {
			return 0, err
		}
		return *slot, nil
	case *UnaryExpr:
		v, err := Evaluate(e.Operand, env)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case "-":
			return -v, nil
		case "!":
			return boolInt(v == 0), nil
		default:
			return v, nil
		}
	case *BinaryExpr:
		return evalBinary(e, env)
	case *StringLit:
		return 0, newError(KindTypeMismatch, e.Line, "string literal used as a number")
	}
	return 0, newError(KindStructural, 0, "unknown expression %T", expr)
}

// EvaluateCondition evaluates expr as a guard; any non-zero value is true.
func EvaluateCondition(expr Expr, env *Environment) (bool, error) {
	v, err := Evaluate(expr, env)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func evalBinary(e *BinaryExpr, env *Environment) (int32, error) {
	left, err := Evaluate(e.Left, env)
	if err != nil {
		return 0, err
	}
	// && and || skip the right side when the left decides the result.
	switch e.Op {
	case "&&":
		if left == 0 {
			return 0, nil
		}
		right, err := EvaluateCondition(e.Right, env)
		return boolInt(right), err
	case "||":
		if left != 0 {
			return 1, nil
		}
		right, err := EvaluateCondition(e.Right, env)
		return boolInt(right), err
	}

	right, err := Evaluate(e.Right, env)
	if err != nil {
		return 0, err
	}
	return applyOp(e.Op, left, right, e.Line)
}

// applyOp is shared with compound assignment.
func applyOp(op string, left, right int32, line int) (int32, error) {
	switch op {
	case "+":
		return left + right, nil
	case "-":
		return left - right, nil
	case "*":
		return left * right, nil
	case "/", "%":
		if right == 0 {
			return 0, newError(KindDivisionByZero, line, "division by zero")
		}
		if op == "/" {
			return left / right, nil
		}
		return left % right, nil
	case "<":
		return boolInt(left < right), nil
	case "<=":
		return boolInt(left <= right), nil
	case ">":
		return boolInt(left > right), nil
	case ">=":
		return boolInt(left >= right), nil
	case "==":
		return boolInt(left == right), nil
	case "!=":
		return boolInt(left != right), nil
	}
	return 0, newError(KindStructural, line, "unknown operator '%s'", op)
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
