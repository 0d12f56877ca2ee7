// Package op defines the opcodes shared by the vscript assembler,
// disassembler and virtual machine.
//
// Every opcode's operand layout is described exactly once, in the Info
// table below. The assembler's label patch pass and the VM's decode loop
// are both driven off this table, so adding an opcode here is sufficient
// to keep the two in sync.
package op

// Code is an integer opcode that indicates an operation to execute.
type Code uint8

const (
	Invalid Code = 0

	// Execution
	End     Code = 1 // stop executing
	Syscall Code = 2 // invoke the host callback; operand is the argument count

	// Push constants
	Const32 Code = 10 // push a 32-bit immediate
	Const64 Code = 11 // push a 64-bit immediate (occupies two stack slots)

	// Stack
	Pop Code = 20 // discard the top of stack

	// Comparisons. Each pops two values and, when the comparison holds,
	// skips the immediately following instruction, which must be a Jmp.
	Eq  Code = 30 // skip next Jmp if s[-2] == s[-1]
	Neq Code = 31 // skip next Jmp if s[-2] != s[-1]
	Lt  Code = 32 // skip next Jmp if s[-2] < s[-1]
	LtF Code = 33 // float variant of Lt
	Gt  Code = 34 // skip next Jmp if s[-2] > s[-1]
	GtF Code = 35 // float variant of Gt

	// Arithmetic, popping two values and pushing the result
	Add  Code = 40
	AddF Code = 41
	Mul  Code = 42
	MulF Code = 43

	// Control flow. Jmp and Call operands are absolute byte offsets,
	// written as label ids until the assembler's finalize pass.
	Jmp  Code = 50 // jump to offset
	Call Code = 51 // push the return address and jump to offset
	Ret  Code = 52 // pop the return address and jump to it

	// Environment and entry arguments
	GetEnv Code = 60 // push environment[idx]
	SetEnv Code = 61 // pop into environment[idx]
	GetArg Code = 62 // push a stack slot; negative idx is relative to the entry frame
)

// Info describes an opcode's name and operand layout. OperandWidth is the
// number of operand bytes following the opcode byte; IsLabel reports
// whether that operand is a label reference the assembler must patch.
type Info struct {
	Code         Code
	Name         string
	OperandWidth int
	IsLabel      bool
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op    Code
		name  string
		width int
		label bool
	}
	ops := []opInfo{
		{End, "END", 0, false},
		{Syscall, "SYSCALL", 4, false},
		{Const32, "CONST32", 4, false},
		{Const64, "CONST64", 8, false},
		{Pop, "POP", 0, false},
		{Eq, "EQ", 0, false},
		{Neq, "NEQ", 0, false},
		{Lt, "LT", 0, false},
		{LtF, "LTF", 0, false},
		{Gt, "GT", 0, false},
		{GtF, "GTF", 0, false},
		{Add, "ADD", 0, false},
		{AddF, "ADDF", 0, false},
		{Mul, "MUL", 0, false},
		{MulF, "MULF", 0, false},
		{Jmp, "JMP", 4, true},
		{Call, "CALL", 4, true},
		{Ret, "RET", 0, false},
		{GetEnv, "GET_ENV", 4, false},
		{SetEnv, "SET_ENV", 4, false},
		{GetArg, "GET_ARG", 4, false},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Code:         o.op,
			Name:         o.name,
			OperandWidth: o.width,
			IsLabel:      o.label,
		}
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	return infos[op]
}

// Width returns the full encoded size of an instruction with the given
// opcode: one opcode byte plus its operand bytes.
func Width(op Code) int {
	return 1 + infos[op].OperandWidth
}
