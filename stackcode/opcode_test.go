package stackcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupRoundTrip(t *testing.T) {
	for name, op := range mnemonics {
		got, ok := Lookup(name)
		require.True(t, ok, "mnemonic %s should resolve", name)
		assert.Equal(t, op, got)
		assert.Equal(t, name, op.String())
	}
}

func TestLookupUnknown(t *testing.T) {
	_, ok := Lookup("NOPE")
	assert.False(t, ok)
	assert.Equal(t, "?unknown?", Opcode(0x99).String())
}

func TestSizeNullaryVsOperandBearing(t *testing.T) {
	for _, op := range []Opcode{POP, DUP, ADD, SUB, MUL, DIV, CMP, RET, HALT} {
		assert.Equal(t, NullaryBytes, Size(op), "%s should be nullary", op)
	}
	for _, op := range []Opcode{PUSH, JMP, JZ, JNZ, STORE, LOAD, CALL} {
		assert.Equal(t, OperandBearingBytes, Size(op), "%s should carry an operand", op)
	}
}

func TestInstructionSizeMatchesSize(t *testing.T) {
	size, ok := InstructionSize("PUSH")
	require.True(t, ok)
	assert.Equal(t, 5, size)

	size, ok = InstructionSize("HALT")
	require.True(t, ok)
	assert.Equal(t, 1, size)

	_, ok = InstructionSize("NOPE")
	assert.False(t, ok)
}

func TestOperandRoundTripNegative(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 2147483647, -2147483648, -12345} {
		buf := EncodeOperand(v)
		assert.Equal(t, v, DecodeOperand(buf[:]))
	}
}

func TestOperandLittleEndianLayout(t *testing.T) {
	buf := EncodeOperand(10)
	assert.Equal(t, [4]byte{0x0A, 0x00, 0x00, 0x00}, buf)

	buf = EncodeOperand(-1)
	assert.Equal(t, [4]byte{0xFF, 0xFF, 0xFF, 0xFF}, buf)
}
