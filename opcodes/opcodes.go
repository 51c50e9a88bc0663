// Package opcodes defines Monty's bytecode instruction set. The grouping
// and range-comment style mirrors the teacher's opcodes/opcodes.go; the
// instruction set itself is Python/Monty-specific.
package opcodes

import "github.com/wudi/monty/intern"

// Op is one bytecode operation.
type Op byte

const (
	// Stack / constant loading (0-6)
	OpLoadConst Op = iota
	OpLoadNone
	OpLoadTrue
	OpLoadFalse
	OpLoadEllipsis
	OpPop
	OpDup

	// Namespace access (7-13)
	OpLoadLocal
	OpStoreLocal
	OpLoadGlobal
	OpStoreGlobal
	OpLoadCell
	OpStoreCell
	OpDeleteLocal

	// Arithmetic & comparison (14-33)
	OpBinAdd
	OpBinSub
	OpBinMult
	OpBinDiv
	OpBinFloorDiv
	OpBinMod
	OpBinPow
	OpBinAnd
	OpBinOr
	OpBinXor
	OpBinLShift
	OpBinRShift
	OpCompareEq
	OpCompareNe
	OpCompareLt
	OpCompareLe
	OpCompareGt
	OpCompareGe
	OpUnaryNeg
	OpUnaryNot

	// Container construction & subscript/attribute (34-43)
	OpBuildList
	OpBuildTuple
	OpBuildDict
	OpBuildSet
	OpSubscript
	OpSubscriptAssign
	OpAttr
	OpAttrAssign
	OpIterSetup
	OpIterNext

	// Control flow (44-56)
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpReturn
	OpReturnNone
	OpRaise
	OpReraise
	OpAssert
	OpSetupTry
	OpPopTry
	OpCall
	OpMakeFunction
	OpMakeClosure

	// Host effects / suspension (57-58)
	OpExternalCall
	OpPrint
)

var opNames = [...]string{
	OpLoadConst: "LOAD_CONST", OpLoadNone: "LOAD_NONE", OpLoadTrue: "LOAD_TRUE",
	OpLoadFalse: "LOAD_FALSE", OpLoadEllipsis: "LOAD_ELLIPSIS", OpPop: "POP", OpDup: "DUP",
	OpLoadLocal: "LOAD_LOCAL", OpStoreLocal: "STORE_LOCAL", OpLoadGlobal: "LOAD_GLOBAL",
	OpStoreGlobal: "STORE_GLOBAL", OpLoadCell: "LOAD_CELL", OpStoreCell: "STORE_CELL",
	OpDeleteLocal: "DELETE_LOCAL",
	OpBinAdd: "BIN_ADD", OpBinSub: "BIN_SUB", OpBinMult: "BIN_MULT", OpBinDiv: "BIN_DIV",
	OpBinFloorDiv: "BIN_FLOORDIV", OpBinMod: "BIN_MOD", OpBinPow: "BIN_POW",
	OpBinAnd: "BIN_AND", OpBinOr: "BIN_OR", OpBinXor: "BIN_XOR",
	OpBinLShift: "BIN_LSHIFT", OpBinRShift: "BIN_RSHIFT",
	OpCompareEq: "COMPARE_EQ", OpCompareNe: "COMPARE_NE", OpCompareLt: "COMPARE_LT",
	OpCompareLe: "COMPARE_LE", OpCompareGt: "COMPARE_GT", OpCompareGe: "COMPARE_GE",
	OpUnaryNeg: "UNARY_NEG", OpUnaryNot: "UNARY_NOT",
	OpBuildList: "BUILD_LIST", OpBuildTuple: "BUILD_TUPLE", OpBuildDict: "BUILD_DICT",
	OpBuildSet: "BUILD_SET", OpSubscript: "SUBSCRIPT", OpSubscriptAssign: "SUBSCRIPT_ASSIGN",
	OpAttr: "ATTR", OpAttrAssign: "ATTR_ASSIGN", OpIterSetup: "ITER_SETUP", OpIterNext: "ITER_NEXT",
	OpJump: "JUMP", OpJumpIfFalse: "JUMP_IF_FALSE", OpJumpIfTrue: "JUMP_IF_TRUE",
	OpReturn: "RETURN", OpReturnNone: "RETURN_NONE", OpRaise: "RAISE", OpReraise: "RERAISE",
	OpAssert: "ASSERT", OpSetupTry: "SETUP_TRY", OpPopTry: "POP_TRY", OpCall: "CALL",
	OpMakeFunction: "MAKE_FUNCTION", OpMakeClosure: "MAKE_CLOSURE",
	OpExternalCall: "EXTERNAL_CALL", OpPrint: "PRINT",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "UNKNOWN_OP"
}

// Instruction is one decoded bytecode instruction: an opcode plus its
// operands. Operands are interpreted per-opcode (e.g. A is a NamespaceId
// for OpLoadLocal, an index into the owning function's Constants pool for
// OpLoadConst, a jump target instruction index for OpJump).
type Instruction struct {
	Op Op
	A  int32
	B  int32
	S  intern.StringID // used when an operand is a name (attribute, ext function)
}

// ConstKind tags which field of Constant holds a LOAD_CONST operand's
// payload.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstStr  // payload is an intern.StringID, reusing the program's string table
	ConstBytes
)

// Constant is one entry in a function's constant pool, addressed by
// OpLoadConst's A operand.
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Str   intern.StringID
	Bytes intern.BytesID
}
