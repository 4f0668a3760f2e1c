package ast

import "testing"

func TestPositionPromotedFromBase(t *testing.T) {
	lit := &Literal{base: base{Position: NewPos(3, 4, 10, 12)}, Kind: "number", Num: 5}
	p := lit.Pos()
	if p.Line != 3 || p.Column != 4 || p.Start != 10 || p.End != 12 {
		t.Errorf("got %#v", p)
	}
}

func TestExprAndStmtInterfaces(t *testing.T) {
	var _ Expr = &Literal{}
	var _ Expr = &Identifier{}
	var _ Expr = &Binary{}
	var _ Expr = &Unary{}
	var _ Expr = &Ternary{}
	var _ Expr = &Call{}
	var _ Expr = &PropertyAccess{}
	var _ Expr = &IndexAccess{}
	var _ Expr = &ObjectLiteral{}
	var _ Expr = &ArrayLiteral{}
	var _ Expr = &Lambda{}
	var _ Expr = &TypeCheck{}
	var _ Expr = &IncrementDecrement{}

	var _ Stmt = &VarDecl{}
	var _ Stmt = &Assignment{}
	var _ Stmt = &If{}
	var _ Stmt = &While{}
	var _ Stmt = &ForEach{}
	var _ Stmt = &For{}
	var _ Stmt = &Switch{}
	var _ Stmt = &Return{}
	var _ Stmt = &Fail{}
	var _ Stmt = &Break{}
	var _ Stmt = &Continue{}
	var _ Stmt = &ExprStmt{}
}

func TestIfBranchesDesugared(t *testing.T) {
	n := &If{
		Branches: []CondBlock{
			{Cond: &Literal{Kind: "boolean", Bool: true}, Body: []Stmt{&Break{}}},
			{Cond: &Literal{Kind: "boolean", Bool: false}, Body: []Stmt{&Continue{}}},
		},
		Else: []Stmt{&Return{}},
	}
	if len(n.Branches) != 2 {
		t.Fatalf("expected 2 branches (if + one elseif), got %d", len(n.Branches))
	}
	if n.Else == nil {
		t.Fatal("expected else block present")
	}
}
