package engine

// Expr is an expression node.
type Expr interface {
	exprNode()
}

// IntLit is an integer or character literal.
type IntLit struct {
	Value int32
}

// StringLit is a string literal; Value is the raw text between the quotes.
// It is only accepted as a printf argument.
type StringLit struct {
	Value string
	Line  int
}

// VarRef reads a scalar variable.
type VarRef struct {
	Name string
	Line int
}

// IndexExpr reads one array element.
type IndexExpr struct {
	Name  string
	Index Expr
	Line  int
}

// UnaryExpr applies -, + or ! to its operand.
type UnaryExpr struct {
	Op      string
	Operand Expr
}

// BinaryExpr applies an arithmetic, relational or logical operator.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
	Line  int
}

func (*IntLit) exprNode()     {}
func (*StringLit) exprNode()  {}
func (*VarRef) exprNode()     {}
func (*IndexExpr) exprNode()  {}
func (*UnaryExpr) exprNode()  {}
func (*BinaryExpr) exprNode() {}

// Stmt is a statement node. Bodies own their statements.
type Stmt interface {
	Pos() int
	stmtNode()
}

type node struct {
	Line int
}

// Pos returns the source line the statement starts on.
func (n node) Pos() int { return n.Line }

// Declarator is one name in a scalar declaration. Init is nil when the
// variable is declared without an initializer.
type Declarator struct {
	Name string
	Init Expr
}

// DeclStmt declares one or more int scalars.
type DeclStmt struct {
	node
	Decls []Declarator
}

// ArrayDeclStmt declares a fixed-size int array. Size is the declared length,
// which equals len(Elems) for the unsized `int a[] = {...}` form. Elems holds
// only the listed initializers; the remaining cells start at zero.
type ArrayDeclStmt struct {
	node
	Name  string
	Size  int
	Elems []int32
}

// Target is an assignable location: a scalar, or an array element when Index
// is set.
type Target struct {
	Name  string
	Index Expr
}

// AssignStmt writes Value into Target using Op (=, +=, -=, *=, /=, %=).
type AssignStmt struct {
	node
	Target Target
	Op     string
	Value  Expr
}

// ForStmt is `for (Init; Cond; Post) Body`. A nil Cond loops until the body
// breaks out or the loop budget is spent.
type ForStmt struct {
	node
	Init []Stmt
	Cond Expr
	Post []Stmt
	Body []Stmt
}

// WhileStmt is a while loop, or a do-while loop when PostCheck is set.
type WhileStmt struct {
	node
	Cond      Expr
	Body      []Stmt
	PostCheck bool
}

// CondBranch is one guarded body of an if/else-if chain.
type CondBranch struct {
	Cond Expr
	Body []Stmt
}

// IfStmt is an if/else-if chain with an optional else body.
type IfStmt struct {
	node
	Branches []CondBranch
	Else     []Stmt
}

// PrintStmt is a printf call. Format is the raw literal text.
type PrintStmt struct {
	node
	Format string
	Args   []Expr
}

// ReturnStmt ends the program.
type ReturnStmt struct {
	node
	Value Expr
}

// BreakStmt leaves the innermost loop.
type BreakStmt struct{ node }

// ContinueStmt skips to the next iteration of the innermost loop.
type ContinueStmt struct{ node }

func (*DeclStmt) stmtNode()      {}
func (*ArrayDeclStmt) stmtNode() {}
func (*AssignStmt) stmtNode()    {}
func (*ForStmt) stmtNode()       {}
func (*WhileStmt) stmtNode()     {}
func (*IfStmt) stmtNode()        {}
func (*PrintStmt) stmtNode()     {}
func (*ReturnStmt) stmtNode()    {}
func (*BreakStmt) stmtNode()     {}
func (*ContinueStmt) stmtNode()  {}

// Program is the parsed body of main, with any file-scope declarations
// placed first.
type Program struct {
	Body []Stmt
}
