// Package parser implements Jyro's recursive-descent parser: a token stream
// from the lexer into an ast.Program, with precedence climbing from `or`
// (lowest) through `and`, equality, relational, additive, multiplicative,
// up to `??` (highest binary level).
//
// Errors are collected into a diagnostic list instead of panicking on the
// first problem, so one parse can report several issues. After an
// unparsable statement the parser synchronizes by skipping to the next
// statement keyword.
package parser

import (
	"strconv"
	"strings"

	"github.com/jyro-lang/jyro/ast"
	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/lexer"
)

// Parser holds the token cursor and the diagnostics collected so far.
type Parser struct {
	lex  *lexer.Lexer
	cur  lexer.Token
	peek lexer.Token
	prev lexer.Token

	diagnostics []diag.Diagnostic
}

// New creates a Parser over src with a two-token lookahead window primed.
func New(src string) *Parser {
	p := &Parser{lex: lexer.New(src)}
	p.cur = p.lex.NextToken()
	p.peek = p.lex.NextToken()
	return p
}

// Parse is the package entry point: source text to a Program plus any
// lexing- and parsing-stage diagnostics. The returned Program is usable only
// when diag.HasErrors reports false over the returned diagnostics.
func Parse(src string) (*ast.Program, []diag.Diagnostic) {
	p := New(src)
	prog := p.parseProgram()
	diags := append([]diag.Diagnostic{}, p.lex.Diagnostics...)
	diags = append(diags, p.diagnostics...)
	return prog, diags
}

func (p *Parser) advance() {
	p.prev = p.cur
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

// expect consumes the current token if it has type t, otherwise records a
// MissingToken diagnostic and leaves the cursor in place.
func (p *Parser) expect(t lexer.TokenType) bool {
	if p.cur.Type == t {
		p.advance()
		return true
	}
	p.errorAt(diag.MissingToken, p.cur, string(t))
	return false
}

func (p *Parser) errorAt(code diag.Code, tok lexer.Token, args ...string) {
	p.diagnostics = append(p.diagnostics, diag.Error(code, diag.StageParsing,
		diag.Position{Line: tok.Line, Column: tok.Column}, args...))
}

// posFrom builds a node Position spanning from start to the most recently
// consumed token.
func (p *Parser) posFrom(start lexer.Token) ast.Position {
	return ast.NewPos(start.Line, start.Column, start.Start, p.prev.End)
}

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for p.cur.Type != lexer.EOF {
		before := p.cur
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		// Guarantee progress even when a statement failed to parse anything.
		if p.cur == before && stmt == nil {
			p.advance()
		}
	}
	return prog
}

// parseBlock parses statements until one of the terminator tokens (or EOF,
// which is reported as a MissingToken for the first terminator). The
// terminator itself is left for the caller to consume.
func (p *Parser) parseBlock(terminators ...lexer.TokenType) []ast.Stmt {
	var stmts []ast.Stmt
	for {
		if p.cur.Type == lexer.EOF {
			p.errorAt(diag.MissingToken, p.cur, string(terminators[0]))
			return stmts
		}
		for _, t := range terminators {
			if p.cur.Type == t {
				return stmts
			}
		}
		before := p.cur
		stmt := p.parseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.cur == before && stmt == nil {
			p.advance()
		}
	}
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.cur.Type {
	case lexer.VAR:
		return p.parseVarDecl()
	case lexer.IF:
		return p.parseIf()
	case lexer.WHILE:
		return p.parseWhile()
	case lexer.FOREACH:
		return p.parseForEach()
	case lexer.FOR:
		return p.parseFor()
	case lexer.SWITCH:
		return p.parseSwitch()
	case lexer.RETURN:
		return p.parseReturn()
	case lexer.FAIL:
		return p.parseFail()
	case lexer.BREAK:
		start := p.cur
		p.advance()
		return at(&ast.Break{}, p.posFrom(start))
	case lexer.CONTINUE:
		start := p.cur
		p.advance()
		return at(&ast.Continue{}, p.posFrom(start))
	default:
		return p.parseExprOrAssignment()
	}
}

// parseVarDecl parses `var name [: type] [= init]`.
func (p *Parser) parseVarDecl() ast.Stmt {
	start := p.cur
	p.advance() // var
	if p.cur.Type != lexer.IDENT {
		p.errorAt(diag.UnexpectedToken, p.cur, p.cur.Literal, "identifier")
		p.synchronize()
		return nil
	}
	name := p.cur.Literal
	p.advance()

	hint := ""
	if p.cur.Type == lexer.COLON {
		p.advance()
		hint = p.parseTypeName()
	}

	var init ast.Expr
	if p.cur.Type == lexer.ASSIGN {
		p.advance()
		init = p.parseExpression()
	}

	d := &ast.VarDecl{Name: name, TypeHint: hint, Init: init}
	return at(d, p.posFrom(start))
}

// parseTypeName consumes a type-hint name: one of the recognised type words,
// lexed as an identifier (or the `null` keyword).
func (p *Parser) parseTypeName() string {
	switch p.cur.Type {
	case lexer.NULL:
		p.advance()
		return "null"
	case lexer.IDENT:
		name := p.cur.Literal
		switch name {
		case "number", "string", "boolean", "array", "object", "any":
			p.advance()
			return name
		}
	}
	p.errorAt(diag.UnexpectedToken, p.cur, p.cur.Literal, "type name")
	return ""
}

// parseIf parses `if cond then ... (elseif cond then ...)* (else ...)? end`,
// desugaring the elseif chain into a list of CondBlocks.
func (p *Parser) parseIf() ast.Stmt {
	start := p.cur
	p.advance() // if

	stmt := &ast.If{}
	cond := p.parseExpression()
	p.expect(lexer.THEN)
	body := p.parseBlock(lexer.ELSEIF, lexer.ELSE, lexer.END)
	stmt.Branches = append(stmt.Branches, ast.CondBlock{Cond: cond, Body: body})

	for p.cur.Type == lexer.ELSEIF {
		p.advance()
		c := p.parseExpression()
		p.expect(lexer.THEN)
		b := p.parseBlock(lexer.ELSEIF, lexer.ELSE, lexer.END)
		stmt.Branches = append(stmt.Branches, ast.CondBlock{Cond: c, Body: b})
	}
	if p.cur.Type == lexer.ELSE {
		p.advance()
		stmt.Else = p.parseBlock(lexer.END)
		if stmt.Else == nil {
			stmt.Else = []ast.Stmt{}
		}
	}
	p.expect(lexer.END)
	return at(stmt, p.posFrom(start))
}

func (p *Parser) parseWhile() ast.Stmt {
	start := p.cur
	p.advance() // while
	cond := p.parseExpression()
	p.expect(lexer.DO)
	body := p.parseBlock(lexer.END)
	p.expect(lexer.END)
	w := &ast.While{Cond: cond, Body: body}
	return at(w, p.posFrom(start))
}

func (p *Parser) parseForEach() ast.Stmt {
	start := p.cur
	p.advance() // foreach
	if p.cur.Type != lexer.IDENT {
		p.errorAt(diag.UnexpectedToken, p.cur, p.cur.Literal, "identifier")
		p.synchronize()
		return nil
	}
	name := p.cur.Literal
	p.advance()
	p.expect(lexer.IN)
	coll := p.parseExpression()
	p.expect(lexer.DO)
	body := p.parseBlock(lexer.END)
	p.expect(lexer.END)
	fe := &ast.ForEach{Var: name, Collection: coll, Body: body}
	return at(fe, p.posFrom(start))
}

// parseFor parses `for i = start to|downto end [by step] do ... end`.
func (p *Parser) parseFor() ast.Stmt {
	start := p.cur
	p.advance() // for
	if p.cur.Type != lexer.IDENT {
		p.errorAt(diag.UnexpectedToken, p.cur, p.cur.Literal, "identifier")
		p.synchronize()
		return nil
	}
	name := p.cur.Literal
	p.advance()
	p.expect(lexer.ASSIGN)
	from := p.parseExpression()

	descending := false
	switch p.cur.Type {
	case lexer.TO:
		p.advance()
	case lexer.DOWNTO:
		descending = true
		p.advance()
	default:
		p.errorAt(diag.MissingToken, p.cur, string(lexer.TO))
	}
	to := p.parseExpression()

	var step ast.Expr
	if p.cur.Type == lexer.BY {
		p.advance()
		step = p.parseExpression()
	}
	p.expect(lexer.DO)
	body := p.parseBlock(lexer.END)
	p.expect(lexer.END)
	f := &ast.For{Var: name, Start: from, End: to, Step: step, Descending: descending, Body: body}
	return at(f, p.posFrom(start))
}

// parseSwitch parses `switch expr (case v1, v2: ...)* (default: ...)? end`.
func (p *Parser) parseSwitch() ast.Stmt {
	start := p.cur
	p.advance() // switch
	disc := p.parseExpression()
	stmt := &ast.Switch{Discriminant: disc}

	for p.cur.Type == lexer.CASE {
		p.advance()
		var values []ast.Expr
		values = append(values, p.parseExpression())
		for p.cur.Type == lexer.COMMA {
			p.advance()
			values = append(values, p.parseExpression())
		}
		p.expect(lexer.COLON)
		body := p.parseBlock(lexer.CASE, lexer.DEFAULT, lexer.END)
		stmt.Cases = append(stmt.Cases, ast.SwitchCase{Values: values, Body: body})
	}
	if p.cur.Type == lexer.DEFAULT {
		p.advance()
		p.expect(lexer.COLON)
		stmt.Default = p.parseBlock(lexer.END)
		if stmt.Default == nil {
			stmt.Default = []ast.Stmt{}
		}
	}
	p.expect(lexer.END)
	return at(stmt, p.posFrom(start))
}

// parseReturn parses `return [expr]`; the value is present only when the
// next token can begin an expression and sits on the same source line.
func (p *Parser) parseReturn() ast.Stmt {
	start := p.cur
	p.advance() // return
	var val ast.Expr
	if p.cur.Line == start.Line && canStartExpression(p.cur.Type) {
		val = p.parseExpression()
	}
	r := &ast.Return{Value: val}
	return at(r, p.posFrom(start))
}

func (p *Parser) parseFail() ast.Stmt {
	start := p.cur
	p.advance() // fail
	msg := p.parseExpression()
	f := &ast.Fail{Message: msg}
	return at(f, p.posFrom(start))
}

// parseExprOrAssignment parses an expression and, if an assignment operator
// follows, reinterprets the expression as the assignment's target. Whether
// the target is actually assignable is the validator's concern, not the
// parser's; it reports InvalidAssignmentTarget there.
func (p *Parser) parseExprOrAssignment() ast.Stmt {
	start := p.cur
	target := p.parseExpression()
	if target == nil {
		p.synchronize()
		return nil
	}

	var op ast.AssignOp
	switch p.cur.Type {
	case lexer.ASSIGN:
		op = ast.AssignSet
	case lexer.PLUS_ASSIGN:
		op = ast.AssignAddTo
	case lexer.MINUS_ASSIGN:
		op = ast.AssignSubFrom
	case lexer.STAR_ASSIGN:
		op = ast.AssignMulBy
	case lexer.SLASH_ASSIGN:
		op = ast.AssignDivBy
	case lexer.PERCENT_ASSIGN:
		op = ast.AssignModBy
	default:
		es := &ast.ExprStmt{X: target}
		return at(es, p.posFrom(start))
	}
	p.advance()
	val := p.parseExpression()
	a := &ast.Assignment{Target: target, Op: op, Value: val}
	return at(a, p.posFrom(start))
}

// synchronize skips tokens until the start of a plausible next statement,
// so one syntax error does not cascade into dozens.
func (p *Parser) synchronize() {
	for p.cur.Type != lexer.EOF {
		switch p.cur.Type {
		case lexer.VAR, lexer.IF, lexer.WHILE, lexer.FOREACH, lexer.FOR,
			lexer.SWITCH, lexer.RETURN, lexer.FAIL, lexer.BREAK,
			lexer.CONTINUE, lexer.END:
			return
		}
		p.advance()
	}
}

func canStartExpression(t lexer.TokenType) bool {
	switch t {
	case lexer.NUMBER, lexer.STRING, lexer.TRUE, lexer.FALSE, lexer.NULL,
		lexer.IDENT, lexer.LPAREN, lexer.LBRACKET, lexer.LBRACE,
		lexer.MINUS, lexer.NOT, lexer.PIPE, lexer.INCREMENT, lexer.DECREMENT:
		return true
	}
	return false
}

// parseNumberLiteral converts a NUMBER token into a Literal node, preserving
// the integer-vs-float look of the source text in ForceFloat.
func (p *Parser) parseNumberLiteral(tok lexer.Token) ast.Expr {
	f, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		p.errorAt(diag.InvalidNumberFormat, tok, tok.Literal)
		f = 0
	}
	lit := &ast.Literal{
		Kind:          "number",
		Num:           f,
		NumForceFloat: strings.ContainsAny(tok.Literal, ".eE"),
	}
	return at(lit, ast.NewPos(tok.Line, tok.Column, tok.Start, tok.End))
}
