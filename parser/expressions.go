package parser

import (
	"github.com/jyro-lang/jyro/ast"
	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/lexer"
)

// at stamps pos onto a freshly built node and returns it, keeping the
// construct-then-position flow readable at call sites.
func at[N interface{ SetPos(ast.Position) }](n N, pos ast.Position) N {
	n.SetPos(pos)
	return n
}

// parseExpression parses a full expression, including the ternary
// `cond ? then : else`, which sits below `or` and associates to the right.
func (p *Parser) parseExpression() ast.Expr {
	start := p.cur
	cond := p.parseOr()
	if cond == nil || p.cur.Type != lexer.QUESTION {
		return cond
	}
	p.advance()
	then := p.parseExpression()
	p.expect(lexer.COLON)
	els := p.parseExpression()
	return at(&ast.Ternary{Cond: cond, Then: then, Else: els}, p.posFrom(start))
}

func (p *Parser) parseOr() ast.Expr {
	start := p.cur
	left := p.parseAnd()
	for left != nil && p.cur.Type == lexer.OR {
		p.advance()
		right := p.parseAnd()
		left = at(&ast.Binary{Op: ast.OpOr, Left: left, Right: right}, p.posFrom(start))
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	start := p.cur
	left := p.parseEquality()
	for left != nil && p.cur.Type == lexer.AND {
		p.advance()
		right := p.parseEquality()
		left = at(&ast.Binary{Op: ast.OpAnd, Left: left, Right: right}, p.posFrom(start))
	}
	return left
}

func (p *Parser) parseEquality() ast.Expr {
	start := p.cur
	left := p.parseRelational()
	for left != nil {
		var op ast.BinaryOp
		switch p.cur.Type {
		case lexer.EQ:
			op = ast.OpEq
		case lexer.NE:
			op = ast.OpNe
		default:
			return left
		}
		p.advance()
		right := p.parseRelational()
		left = at(&ast.Binary{Op: op, Left: left, Right: right}, p.posFrom(start))
	}
	return left
}

// parseRelational handles < <= > >= and the `is [not] <type>` type check,
// which binds at the same level.
func (p *Parser) parseRelational() ast.Expr {
	start := p.cur
	left := p.parseAdditive()
	for left != nil {
		var op ast.BinaryOp
		switch p.cur.Type {
		case lexer.LT:
			op = ast.OpLt
		case lexer.LE:
			op = ast.OpLe
		case lexer.GT:
			op = ast.OpGt
		case lexer.GE:
			op = ast.OpGe
		case lexer.IS:
			p.advance()
			negate := false
			if p.cur.Type == lexer.NOT {
				negate = true
				p.advance()
			}
			typeName := p.parseCheckedTypeName()
			left = at(&ast.TypeCheck{Operand: left, Type: typeName, Negate: negate}, p.posFrom(start))
			continue
		default:
			return left
		}
		p.advance()
		right := p.parseAdditive()
		left = at(&ast.Binary{Op: op, Left: left, Right: right}, p.posFrom(start))
	}
	return left
}

// parseCheckedTypeName consumes the type word of an `is` check, which also
// admits "function" (a variant tag, not a declarable hint).
func (p *Parser) parseCheckedTypeName() string {
	switch p.cur.Type {
	case lexer.NULL:
		p.advance()
		return "null"
	case lexer.IDENT:
		name := p.cur.Literal
		switch name {
		case "number", "string", "boolean", "array", "object", "function":
			p.advance()
			return name
		}
	}
	p.errorAt(diag.UnexpectedToken, p.cur, p.cur.Literal, "type name")
	return ""
}

func (p *Parser) parseAdditive() ast.Expr {
	start := p.cur
	left := p.parseMultiplicative()
	for left != nil {
		var op ast.BinaryOp
		switch p.cur.Type {
		case lexer.PLUS:
			op = ast.OpAdd
		case lexer.MINUS:
			op = ast.OpSub
		default:
			return left
		}
		p.advance()
		right := p.parseMultiplicative()
		left = at(&ast.Binary{Op: op, Left: left, Right: right}, p.posFrom(start))
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	start := p.cur
	left := p.parseCoalesce()
	for left != nil {
		var op ast.BinaryOp
		switch p.cur.Type {
		case lexer.STAR:
			op = ast.OpMul
		case lexer.SLASH:
			op = ast.OpDiv
		case lexer.PERCENT:
			op = ast.OpMod
		default:
			return left
		}
		p.advance()
		right := p.parseCoalesce()
		left = at(&ast.Binary{Op: op, Left: left, Right: right}, p.posFrom(start))
	}
	return left
}

// parseCoalesce binds tighter than every other binary operator; it is the
// highest binary precedence level.
func (p *Parser) parseCoalesce() ast.Expr {
	start := p.cur
	left := p.parseUnary()
	for left != nil && p.cur.Type == lexer.COALESCE {
		p.advance()
		right := p.parseUnary()
		left = at(&ast.Binary{Op: ast.OpCoalesce, Left: left, Right: right}, p.posFrom(start))
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	start := p.cur
	switch p.cur.Type {
	case lexer.MINUS:
		p.advance()
		operand := p.parseUnary()
		return at(&ast.Unary{Op: ast.OpNegate, Operand: operand}, p.posFrom(start))
	case lexer.NOT:
		p.advance()
		operand := p.parseUnary()
		return at(&ast.Unary{Op: ast.OpNot, Operand: operand}, p.posFrom(start))
	case lexer.INCREMENT, lexer.DECREMENT:
		op := ast.OpIncrement
		if p.cur.Type == lexer.DECREMENT {
			op = ast.OpDecrement
		}
		p.advance()
		target := p.parseUnary()
		return at(&ast.IncrementDecrement{Op: op, Target: target, Prefix: true}, p.posFrom(start))
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any chain of
// property access, index access, call, and postfix increment/decrement.
func (p *Parser) parsePostfix() ast.Expr {
	start := p.cur
	expr := p.parsePrimary()
	for expr != nil {
		switch p.cur.Type {
		case lexer.DOT:
			p.advance()
			if p.cur.Type != lexer.IDENT {
				p.errorAt(diag.UnexpectedToken, p.cur, p.cur.Literal, "property name")
				return expr
			}
			name := p.cur.Literal
			p.advance()
			expr = at(&ast.PropertyAccess{Target: expr, Name: name}, p.posFrom(start))
		case lexer.LBRACKET:
			p.advance()
			idx := p.parseExpression()
			p.expect(lexer.RBRACKET)
			expr = at(&ast.IndexAccess{Target: expr, Index: idx}, p.posFrom(start))
		case lexer.LPAREN:
			ident, ok := expr.(*ast.Identifier)
			if !ok {
				p.errorAt(diag.UnexpectedToken, p.cur, "(", "operator")
				return expr
			}
			p.advance()
			args := p.parseCallArguments()
			expr = at(&ast.Call{Callee: ident.Name, Args: args}, p.posFrom(start))
		case lexer.INCREMENT, lexer.DECREMENT:
			// A postfix ++/-- binds only on its operand's line; on a new
			// line it begins the next statement as a prefix operator.
			if p.cur.Line != p.prev.Line {
				return expr
			}
			op := ast.OpIncrement
			if p.cur.Type == lexer.DECREMENT {
				op = ast.OpDecrement
			}
			p.advance()
			expr = at(&ast.IncrementDecrement{Op: op, Target: expr, Prefix: false}, p.posFrom(start))
		default:
			return expr
		}
	}
	return expr
}

func (p *Parser) parseCallArguments() []ast.Expr {
	var args []ast.Expr
	if p.cur.Type == lexer.RPAREN {
		p.advance()
		return args
	}
	args = append(args, p.parseExpression())
	for p.cur.Type == lexer.COMMA {
		p.advance()
		args = append(args, p.parseExpression())
	}
	p.expect(lexer.RPAREN)
	return args
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.cur
	switch tok.Type {
	case lexer.NUMBER:
		p.advance()
		return p.parseNumberLiteral(tok)
	case lexer.STRING:
		p.advance()
		return at(&ast.Literal{Kind: "string", Str: tok.Literal},
			ast.NewPos(tok.Line, tok.Column, tok.Start, tok.End))
	case lexer.TRUE, lexer.FALSE:
		p.advance()
		return at(&ast.Literal{Kind: "boolean", Bool: tok.Type == lexer.TRUE},
			ast.NewPos(tok.Line, tok.Column, tok.Start, tok.End))
	case lexer.NULL:
		p.advance()
		return at(&ast.Literal{Kind: "null"},
			ast.NewPos(tok.Line, tok.Column, tok.Start, tok.End))
	case lexer.IDENT:
		p.advance()
		return at(&ast.Identifier{Name: tok.Literal},
			ast.NewPos(tok.Line, tok.Column, tok.Start, tok.End))
	case lexer.LPAREN:
		p.advance()
		expr := p.parseExpression()
		p.expect(lexer.RPAREN)
		return expr
	case lexer.LBRACKET:
		return p.parseArrayLiteral()
	case lexer.LBRACE:
		return p.parseObjectLiteral()
	case lexer.PIPE:
		return p.parseLambda()
	}
	p.errorAt(diag.UnexpectedToken, tok, tok.Literal, "expression")
	return nil
}

func (p *Parser) parseArrayLiteral() ast.Expr {
	start := p.cur
	p.advance() // [
	lit := &ast.ArrayLiteral{}
	if p.cur.Type != lexer.RBRACKET {
		lit.Elements = append(lit.Elements, p.parseExpression())
		for p.cur.Type == lexer.COMMA {
			p.advance()
			lit.Elements = append(lit.Elements, p.parseExpression())
		}
	}
	p.expect(lexer.RBRACKET)
	return at(lit, p.posFrom(start))
}

// parseObjectLiteral parses `{ key: expr, ... }`; keys are identifiers or
// string literals.
func (p *Parser) parseObjectLiteral() ast.Expr {
	start := p.cur
	p.advance() // {
	lit := &ast.ObjectLiteral{}
	for p.cur.Type != lexer.RBRACE && p.cur.Type != lexer.EOF {
		var key string
		switch p.cur.Type {
		case lexer.IDENT, lexer.STRING:
			key = p.cur.Literal
			p.advance()
		default:
			p.errorAt(diag.UnexpectedToken, p.cur, p.cur.Literal, "object key")
			p.synchronize()
			return at(lit, p.posFrom(start))
		}
		p.expect(lexer.COLON)
		val := p.parseExpression()
		lit.Entries = append(lit.Entries, ast.ObjectEntry{Key: key, Value: val})
		if p.cur.Type != lexer.COMMA {
			break
		}
		p.advance()
	}
	p.expect(lexer.RBRACE)
	return at(lit, p.posFrom(start))
}

// parseLambda parses `|a, b| expr` — an anonymous function whose body is a
// single expression.
func (p *Parser) parseLambda() ast.Expr {
	start := p.cur
	p.advance() // |
	lam := &ast.Lambda{}
	if p.cur.Type != lexer.PIPE {
		for {
			if p.cur.Type != lexer.IDENT {
				p.errorAt(diag.UnexpectedToken, p.cur, p.cur.Literal, "parameter name")
				break
			}
			lam.Params = append(lam.Params, p.cur.Literal)
			p.advance()
			if p.cur.Type != lexer.COMMA {
				break
			}
			p.advance()
		}
	}
	p.expect(lexer.PIPE)
	lam.Body = p.parseExpression()
	return at(lam, p.posFrom(start))
}
