// Package stackcode holds the bytecode format shared by the vm and
// assembler packages: the opcode table, instruction sizing, and the
// little-endian int32 operand codec. Changing an opcode only requires an
// edit here.
package stackcode

import "encoding/binary"

// Opcode is a single bytecode instruction tag.
type Opcode byte

// The fixed opcode table. Values are part of the wire format and must
// never change.
const (
	PUSH Opcode = 0x01
	POP  Opcode = 0x02
	DUP  Opcode = 0x03

	ADD Opcode = 0x10
	SUB Opcode = 0x11
	MUL Opcode = 0x12
	DIV Opcode = 0x13
	CMP Opcode = 0x14

	JMP Opcode = 0x20
	JZ  Opcode = 0x21
	JNZ Opcode = 0x22

	STORE Opcode = 0x30
	LOAD  Opcode = 0x31

	CALL Opcode = 0x40
	RET  Opcode = 0x41

	HALT Opcode = 0xFF
)

// OperandBytes is the fixed width of an instruction operand.
const OperandBytes = 4

// NullaryBytes is the size in bytes of an opcode with no operand.
const NullaryBytes = 1

// OperandBearingBytes is the size in bytes of an opcode plus its operand.
const OperandBearingBytes = NullaryBytes + OperandBytes

var mnemonics = map[string]Opcode{
	"PUSH": PUSH,
	"POP":  POP,
	"DUP":  DUP,

	"ADD": ADD,
	"SUB": SUB,
	"MUL": MUL,
	"DIV": DIV,
	"CMP": CMP,

	"JMP": JMP,
	"JZ":  JZ,
	"JNZ": JNZ,

	"STORE": STORE,
	"LOAD":  LOAD,

	"CALL": CALL,
	"RET":  RET,

	"HALT": HALT,
}

var names map[Opcode]string

func init() {
	names = make(map[Opcode]string, len(mnemonics))
	for name, op := range mnemonics {
		names[op] = name
	}
}

// String returns the mnemonic for an opcode, or "?unknown?" if the byte
// is not in the table.
func (op Opcode) String() string {
	if name, ok := names[op]; ok {
		return name
	}
	return "?unknown?"
}

// HasOperand reports whether op is operand-bearing (PUSH, JMP, JZ, JNZ,
// STORE, LOAD, CALL) as opposed to nullary.
func (op Opcode) HasOperand() bool {
	switch op {
	case PUSH, JMP, JZ, JNZ, STORE, LOAD, CALL:
		return true
	default:
		return false
	}
}

// Lookup resolves a mnemonic (case-sensitive, upper-case) to its opcode.
func Lookup(mnemonic string) (Opcode, bool) {
	op, ok := mnemonics[mnemonic]
	return op, ok
}

// Size returns the number of bytes op occupies in the code image: 1 for
// nullary opcodes, 1+OperandBytes for operand-bearing ones.
func Size(op Opcode) int {
	if op.HasOperand() {
		return OperandBearingBytes
	}
	return NullaryBytes
}

// InstructionSize returns the byte size of the instruction named by
// mnemonic. It is the single table both assembler passes must use so
// that pass 1's address computation never drifts from pass 2's emission.
func InstructionSize(mnemonic string) (int, bool) {
	op, ok := Lookup(mnemonic)
	if !ok {
		return 0, false
	}
	return Size(op), true
}

// EncodeOperand encodes v as 4 little-endian bytes, two's-complement.
func EncodeOperand(v int32) [OperandBytes]byte {
	var buf [OperandBytes]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return buf
}

// DecodeOperand decodes 4 little-endian bytes into a signed int32. The
// high byte is always treated as the sign byte of a two's-complement
// value, never shifted in as an unsigned byte, so negative operands
// round-trip correctly.
func DecodeOperand(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}
