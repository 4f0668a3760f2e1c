package binfmt

import "github.com/jyro-lang/jyro/ast"

// Operators serialise as small u8 tags. Zero is reserved as "invalid" so
// a truncated or corrupted byte never maps silently onto the first
// operator.

var binaryOpTags = map[ast.BinaryOp]byte{
	ast.OpAdd:      1,
	ast.OpSub:      2,
	ast.OpMul:      3,
	ast.OpDiv:      4,
	ast.OpMod:      5,
	ast.OpEq:       6,
	ast.OpNe:       7,
	ast.OpLt:       8,
	ast.OpLe:       9,
	ast.OpGt:       10,
	ast.OpGe:       11,
	ast.OpAnd:      12,
	ast.OpOr:       13,
	ast.OpCoalesce: 14,
}

var binaryOpFromTag = invert(binaryOpTags)

var unaryOpTags = map[ast.UnaryOp]byte{
	ast.OpNegate: 1,
	ast.OpNot:    2,
}

var unaryOpFromTag = invert(unaryOpTags)

var assignOpTags = map[ast.AssignOp]byte{
	ast.AssignSet:     1,
	ast.AssignAddTo:   2,
	ast.AssignSubFrom: 3,
	ast.AssignMulBy:   4,
	ast.AssignDivBy:   5,
	ast.AssignModBy:   6,
}

var assignOpFromTag = invert(assignOpTags)

var incDecOpTags = map[ast.IncDecOp]byte{
	ast.OpIncrement: 1,
	ast.OpDecrement: 2,
}

var incDecOpFromTag = invert(incDecOpTags)

func invert[K comparable](m map[K]byte) map[byte]K {
	out := make(map[byte]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func binaryOpTag(op ast.BinaryOp) byte { return binaryOpTags[op] }
func unaryOpTag(op ast.UnaryOp) byte   { return unaryOpTags[op] }
func assignOpTag(op ast.AssignOp) byte { return assignOpTags[op] }
func incDecOpTag(op ast.IncDecOp) byte { return incDecOpTags[op] }
