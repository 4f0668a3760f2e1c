// Package binfmt implements the .jyrx binary serialization format: a
// compact little-endian encoding of a validated AST plus the names of the
// functions it requires and a SHA-256 of the original source.
//
// The layout is a 44-byte header (magic, format version, flags, source
// hash, function count), a length-prefixed function-name table, and the
// statement list as tagged nodes. Reading enforces hard safety limits
// before trusting any count or offset.
package binfmt

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	// Magic is the 4-byte ASCII file signature.
	Magic = "JYRX"
	// Version is the current format version carried in the header.
	Version uint16 = 2

	// MaxFileSize bounds the accepted input when reading.
	MaxFileSize = 10 << 20
	// MaxDepth bounds AST recursion when reading and writing.
	MaxDepth = 200
	// MaxFunctions bounds the function-name table.
	MaxFunctions = 1000
	// MaxListLen bounds every encoded list's element count.
	MaxListLen = 10000
	// MaxStringLen bounds every encoded string's byte length.
	MaxStringLen = 65535

	headerSize = 44
)

// Expression tags, one per node variant, in declaration order.
const (
	tagLiteral     byte = 0x01
	tagIdentifier  byte = 0x02
	tagBinary      byte = 0x03
	tagUnary       byte = 0x04
	tagTernary     byte = 0x05
	tagCall        byte = 0x06
	tagPropertyAcc byte = 0x07
	tagIndexAccess byte = 0x08
	tagObjectLit   byte = 0x09
	tagArrayLit    byte = 0x0A
	tagLambda      byte = 0x0B
	tagTypeCheck   byte = 0x0C
	tagIncDec      byte = 0x0D
)

// Statement tags.
const (
	tagVarDecl    byte = 0x20
	tagAssignment byte = 0x21
	tagIf         byte = 0x22
	tagWhile      byte = 0x23
	tagForEach    byte = 0x24
	tagFor        byte = 0x25
	tagSwitch     byte = 0x26
	tagReturn     byte = 0x27
	tagFail       byte = 0x28
	tagBreak      byte = 0x29
	tagContinue   byte = 0x2A
	tagExprStmt   byte = 0x2B
)

// Literal value tags.
const (
	litNull    byte = 1
	litBoolean byte = 2
	litNumber  byte = 3
	litString  byte = 4
)

// Writer-side limit violations.
var (
	ErrStringTooLong = errors.New("jyrx: string exceeds maximum length")
	ErrListTooLong   = errors.New("jyrx: list exceeds maximum length")
	ErrTooDeep       = fmt.Errorf("jyrx: AST deeper than %d levels", MaxDepth)
	ErrTooManyFuncs  = fmt.Errorf("jyrx: more than %d required functions", MaxFunctions)
)

// HashSource computes the 32-byte source hash stored in the header.
func HashSource(src string) [32]byte {
	return sha256.Sum256([]byte(src))
}
