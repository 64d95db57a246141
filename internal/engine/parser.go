package engine

const maxArrayLen = 1 << 16

var keywords = map[string]bool{
	"int": true, "for": true, "while": true, "do": true, "if": true,
	"else": true, "return": true, "break": true, "continue": true,
}

var unsupportedTypes = map[string]bool{
	"char": true, "short": true, "long": true, "float": true, "double": true,
	"unsigned": true, "signed": true, "void": true, "const": true, "static": true,
	"struct": true, "union": true, "enum": true, "bool": true, "size_t": true,
}

var unsupportedStatements = map[string]bool{
	"switch": true, "case": true, "default": true, "goto": true, "typedef": true,
}

var binaryPrecedence = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

var assignOps = map[string]bool{"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true}

// Parse builds the statement tree for a program in one linear pass.
func Parse(source string) (*Program, error) {
	toks, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

type parser struct {
	toks      []token
	pos       int
	loopDepth int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func (p *parser) isWord(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *parser) accept(text string) bool {
	if p.isPunct(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) (token, error) {
	t := p.peek()
	if t.kind == tokPunct && t.text == text {
		p.pos++
		return t, nil
	}
	return t, syntaxError(t.line, "expected '%s' but found %s", text, describe(t))
}

func (p *parser) expectWord(word string) error {
	t := p.peek()
	if t.kind == tokIdent && t.text == word {
		p.pos++
		return nil
	}
	return syntaxError(t.line, "expected '%s' but found %s", word, describe(t))
}

func (p *parser) expectName() (token, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return t, syntaxError(t.line, "expected an identifier but found %s", describe(t))
	}
	if keywords[t.text] || unsupportedTypes[t.text] {
		return t, syntaxError(t.line, "'%s' is a reserved word and cannot be used as a name", t.text)
	}
	p.pos++
	return t, nil
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return "string literal"
	default:
		return "'" + t.text + "'"
	}
}

func (p *parser) parseProgram() (*Program, error) {
	var body []Stmt
	sawMain := false
	for p.peek().kind != tokEOF {
		t := p.peek()
		if sawMain {
			return nil, syntaxError(t.line, "unexpected %s after main; only a single main function is supported", describe(t))
		}
		if p.isWord("int") && p.peekAt(1).text == "main" && p.peekAt(2).text == "(" {
			stmts, err := p.parseMain()
			if err != nil {
				return nil, err
			}
			body = append(body, stmts...)
			sawMain = true
			continue
		}
		if (p.isWord("int") || unsupportedTypes[t.text]) && p.peekAt(1).kind == tokIdent && p.peekAt(2).text == "(" {
			return nil, syntaxError(t.line, "function '%s' is not supported; only main may be defined", p.peekAt(1).text)
		}
		if p.isWord("int") {
			stmts, err := p.parseDeclaration()
			if err != nil {
				return nil, err
			}
			body = append(body, stmts...)
			continue
		}
		return nil, syntaxError(t.line, "unexpected %s at file scope", describe(t))
	}
	if !sawMain {
		return nil, syntaxError(0, "missing main function")
	}
	return &Program{Body: body}, nil
}

func (p *parser) parseMain() ([]Stmt, error) {
	p.advance() // int
	p.advance() // main
	p.advance() // (
	if p.isWord("void") {
		p.advance()
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	return p.parseBlockItems()
}

// parseBlockItems parses statements up to and including the closing brace.
func (p *parser) parseBlockItems() ([]Stmt, error) {
	var stmts []Stmt
	for !p.isPunct("}") {
		if p.peek().kind == tokEOF {
			return nil, syntaxError(p.peek().line, "expected '}' before end of input")
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s...)
	}
	p.advance()
	return stmts, nil
}

func (p *parser) parseBody() ([]Stmt, error) {
	if p.accept("{") {
		return p.parseBlockItems()
	}
	return p.parseStatement()
}

func (p *parser) parseLoopBody() ([]Stmt, error) {
	p.loopDepth++
	defer func() { p.loopDepth-- }()
	return p.parseBody()
}

func one(s Stmt, err error) ([]Stmt, error) {
	if err != nil {
		return nil, err
	}
	return []Stmt{s}, nil
}

func (p *parser) parseStatement() ([]Stmt, error) {
	t := p.peek()
	switch {
	case p.accept("{"):
		return p.parseBlockItems()
	case p.accept(";"):
		return nil, nil
	case p.isPunct("++") || p.isPunct("--"):
		return one(p.parseTerminated())
	case t.kind != tokIdent:
		return nil, syntaxError(t.line, "unexpected %s at start of statement", describe(t))
	}

	switch t.text {
	case "int":
		return p.parseDeclaration()
	case "for":
		return one(p.parseFor())
	case "while":
		return one(p.parseWhile())
	case "do":
		return one(p.parseDoWhile())
	case "if":
		return one(p.parseIf())
	case "return":
		return one(p.parseReturn())
	case "break", "continue":
		return one(p.parseJump())
	case "printf":
		return one(p.parsePrintf())
	case "else":
		return nil, syntaxError(t.line, "'else' without a matching 'if'")
	}
	if unsupportedTypes[t.text] {
		return nil, syntaxError(t.line, "unsupported type '%s'; only int variables are supported", t.text)
	}
	if unsupportedStatements[t.text] {
		return nil, syntaxError(t.line, "unsupported statement '%s'", t.text)
	}
	if p.peekAt(1).text == "(" {
		return nil, syntaxError(t.line, "unsupported function '%s'; only printf is available", t.text)
	}
	return one(p.parseTerminated())
}

func (p *parser) parseTerminated() (Stmt, error) {
	s, err := p.parseSimple()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return s, nil
}

// parseSimple parses an assignment or increment without its terminator.
func (p *parser) parseSimple() (Stmt, error) {
	line := p.peek().line
	if p.isPunct("++") || p.isPunct("--") {
		op := p.advance().text
		target, err := p.parseTarget()
		if err != nil {
			return nil, err
		}
		return stepStmt(line, target, op), nil
	}
	target, err := p.parseTarget()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	switch {
	case t.kind == tokPunct && assignOps[t.text]:
		p.advance()
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{node: node{line}, Target: target, Op: t.text, Value: value}, nil
	case t.kind == tokPunct && (t.text == "++" || t.text == "--"):
		p.advance()
		return stepStmt(line, target, t.text), nil
	}
	return nil, syntaxError(t.line, "expected an assignment to '%s' but found %s", target.Name, describe(t))
}

func stepStmt(line int, target Target, op string) *AssignStmt {
	assign := "+="
	if op == "--" {
		assign = "-="
	}
	return &AssignStmt{node: node{line}, Target: target, Op: assign, Value: &IntLit{Value: 1}}
}

func (p *parser) parseSimpleList() ([]Stmt, error) {
	var stmts []Stmt
	for {
		s, err := p.parseSimple()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if !p.accept(",") {
			return stmts, nil
		}
	}
}

func (p *parser) parseTarget() (Target, error) {
	name, err := p.expectName()
	if err != nil {
		return Target{}, err
	}
	target := Target{Name: name.text}
	if p.accept("[") {
		index, err := p.parseExpr()
		if err != nil {
			return Target{}, err
		}
		if _, err := p.expect("]"); err != nil {
			return Target{}, err
		}
		target.Index = index
	}
	return target, nil
}

// parseDeclaration parses `int` declarators through the terminating semicolon.
// Scalars and arrays may be mixed; program order is preserved.
func (p *parser) parseDeclaration() ([]Stmt, error) {
	line := p.advance().line // int
	var stmts []Stmt
	var pending []Declarator
	flush := func() {
		if len(pending) > 0 {
			stmts = append(stmts, &DeclStmt{node: node{line}, Decls: pending})
			pending = nil
		}
	}
	for {
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		if p.accept("[") {
			arr, err := p.parseArrayDeclarator(name)
			if err != nil {
				return nil, err
			}
			flush()
			stmts = append(stmts, arr)
		} else {
			var init Expr
			if p.accept("=") {
				if init, err = p.parseExpr(); err != nil {
					return nil, err
				}
			}
			pending = append(pending, Declarator{Name: name.text, Init: init})
		}
		if !p.accept(",") {
			break
		}
	}
	flush()
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *parser) parseArrayDeclarator(name token) (*ArrayDeclStmt, error) {
	size := -1
	if !p.isPunct("]") {
		t := p.advance()
		if t.kind != tokInt {
			return nil, syntaxError(t.line, "array size of '%s' must be an integer literal", name.text)
		}
		if t.value <= 0 || t.value > maxArrayLen {
			return nil, syntaxError(t.line, "array size of '%s' must be between 1 and %d", name.text, maxArrayLen)
		}
		size = int(t.value)
	}
	if _, err := p.expect("]"); err != nil {
		return nil, err
	}
	var elems []int32
	if p.accept("=") {
		if _, err := p.expect("{"); err != nil {
			return nil, err
		}
		for !p.isPunct("}") {
			v, err := p.parseIntConstant()
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
			if !p.accept(",") {
				break
			}
		}
		if _, err := p.expect("}"); err != nil {
			return nil, err
		}
	} else if size < 0 {
		return nil, syntaxError(name.line, "array '%s' needs a size or an initializer list", name.text)
	}
	if size < 0 {
		size = len(elems)
		if size == 0 {
			return nil, syntaxError(name.line, "array '%s' must have at least one element", name.text)
		}
	}
	if len(elems) > size {
		return nil, syntaxError(name.line, "too many initializers for array '%s' (%d > %d)", name.text, len(elems), size)
	}
	return &ArrayDeclStmt{node: node{name.line}, Name: name.text, Size: size, Elems: elems}, nil
}

func (p *parser) parseIntConstant() (int32, error) {
	neg := p.accept("-")
	if !neg {
		p.accept("+")
	}
	t := p.advance()
	if t.kind != tokInt {
		return 0, syntaxError(t.line, "array elements must be integer literals, found %s", describe(t))
	}
	if neg {
		return -t.value, nil
	}
	return t.value, nil
}

func (p *parser) parseFor() (Stmt, error) {
	line := p.advance().line
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var init []Stmt
	var err error
	switch {
	case p.isWord("int"):
		if init, err = p.parseDeclaration(); err != nil {
			return nil, err
		}
	case p.accept(";"):
	default:
		if init, err = p.parseSimpleList(); err != nil {
			return nil, err
		}
		if _, err := p.expect(";"); err != nil {
			return nil, err
		}
	}
	var cond Expr
	if !p.isPunct(";") {
		if cond, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	var post []Stmt
	if !p.isPunct(")") {
		if post, err = p.parseSimpleList(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}
	return &ForStmt{node: node{line}, Init: init, Cond: cond, Post: post, Body: body}, nil
}

func (p *parser) parseCondition() (Expr, error) {
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return cond, nil
}

func (p *parser) parseWhile() (Stmt, error) {
	line := p.advance().line
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{node: node{line}, Cond: cond, Body: body}, nil
}

func (p *parser) parseDoWhile() (Stmt, error) {
	line := p.advance().line
	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}
	if err := p.expectWord("while"); err != nil {
		return nil, err
	}
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return &WhileStmt{node: node{line}, Cond: cond, Body: body, PostCheck: true}, nil
}

func (p *parser) parseIf() (Stmt, error) {
	stmt := &IfStmt{node: node{p.peek().line}}
	for {
		p.advance() // if
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		stmt.Branches = append(stmt.Branches, CondBranch{Cond: cond, Body: body})
		if !p.isWord("else") {
			return stmt, nil
		}
		p.advance()
		if p.isWord("if") {
			continue
		}
		if stmt.Else, err = p.parseBody(); err != nil {
			return nil, err
		}
		return stmt, nil
	}
}

func (p *parser) parseReturn() (Stmt, error) {
	line := p.advance().line
	var value Expr
	if !p.isPunct(";") {
		var err error
		if value, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return &ReturnStmt{node: node{line}, Value: value}, nil
}

func (p *parser) parseJump() (Stmt, error) {
	t := p.advance()
	if p.loopDepth == 0 {
		return nil, syntaxError(t.line, "'%s' statement not within a loop", t.text)
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	if t.text == "break" {
		return &BreakStmt{node{t.line}}, nil
	}
	return &ContinueStmt{node{t.line}}, nil
}

func (p *parser) parsePrintf() (Stmt, error) {
	line := p.advance().line
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	if p.peek().kind != tokString {
		return nil, syntaxError(p.peek().line, "printf expects a string literal format but found %s", describe(p.peek()))
	}
	format := p.parseStringLit()
	var args []Expr
	for p.accept(",") {
		if p.peek().kind == tokString {
			t := p.peek()
			args = append(args, &StringLit{Value: p.parseStringLit(), Line: t.line})
			continue
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return &PrintStmt{node: node{line}, Format: format, Args: args}, nil
}

// parseStringLit joins adjacent string literals the way C does.
func (p *parser) parseStringLit() string {
	text := p.advance().text
	for p.peek().kind == tokString {
		text += p.advance().text
	}
	return text
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseBinary(1)
}

func (p *parser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		prec, ok := binaryPrecedence[t.text]
		if t.kind != tokPunct || !ok || prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: t.text, Left: left, Right: right, Line: t.line}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	t := p.peek()
	if t.kind == tokPunct {
		switch t.text {
		case "-", "+", "!":
			p.advance()
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &UnaryExpr{Op: t.text, Operand: operand}, nil
		case "++", "--":
			return nil, syntaxError(t.line, "'%s' is only supported as a statement", t.text)
		}
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokInt:
		p.advance()
		return &IntLit{Value: t.value}, nil
	case tokString:
		return nil, syntaxError(t.line, "string literal is only allowed as a printf argument")
	case tokIdent:
		if p.peekAt(1).text == "(" && !keywords[t.text] {
			return nil, syntaxError(t.line, "function call '%s' is not supported in expressions", t.text)
		}
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		if p.accept("[") {
			index, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect("]"); err != nil {
				return nil, err
			}
			return &IndexExpr{Name: name.text, Index: index, Line: name.line}, nil
		}
		return &VarRef{Name: name.text, Line: name.line}, nil
	}
	if p.accept("(") {
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, syntaxError(t.line, "expected an expression but found %s", describe(t))
}
