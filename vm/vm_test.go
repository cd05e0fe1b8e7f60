package vm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gvmlang/stackvm/stackcode"
	"github.com/gvmlang/stackvm/vm"
)

// buildRunHalt assembles the raw opcode bytes by hand (no assembler
// dependency here, vm is tested in isolation) and runs them to
// completion, returning the VM for assertions.
func buildRunHalt(t *testing.T, code []byte) *vm.VM {
	t.Helper()
	machine := vm.New(code)
	err := machine.Run(context.Background())
	require.NoError(t, err)
	return machine
}

func push(b []byte, v int32) []byte {
	b = append(b, byte(stackcode.PUSH))
	enc := stackcode.EncodeOperand(v)
	return append(b, enc[:]...)
}

func nullary(b []byte, op stackcode.Opcode) []byte {
	return append(b, byte(op))
}

func operand(b []byte, op stackcode.Opcode, v int32) []byte {
	b = append(b, byte(op))
	enc := stackcode.EncodeOperand(v)
	return append(b, enc[:]...)
}

func TestAddLeavesSumOnStack(t *testing.T) {
	var code []byte
	code = push(code, 10)
	code = push(code, 20)
	code = nullary(code, stackcode.ADD)
	code = nullary(code, stackcode.HALT)

	machine := buildRunHalt(t, code)
	top, ok := machine.Top()
	require.True(t, ok)
	assert.Equal(t, int32(30), top)
}

func TestCmpOrdersOperandsByPushOrder(t *testing.T) {
	var code []byte
	code = push(code, 5)
	code = push(code, 3)
	code = nullary(code, stackcode.CMP)
	code = nullary(code, stackcode.HALT)
	top, ok := buildRunHalt(t, code).Top()
	require.True(t, ok)
	assert.Equal(t, int32(0), top)

	code = nil
	code = push(code, 3)
	code = push(code, 5)
	code = nullary(code, stackcode.CMP)
	code = nullary(code, stackcode.HALT)
	top, ok = buildRunHalt(t, code).Top()
	require.True(t, ok)
	assert.Equal(t, int32(1), top)
}

// TestCallReturnsToInstructionAfterCall runs the 18-byte image 01 0A 00 00
// 00 40 0B 00 00 00 FF 01 14 00 00 00 10 41 and checks that RET resumes at
// the HALT after the CALL, leaving 10+20 on the stack.
func TestCallReturnsToInstructionAfterCall(t *testing.T) {
	code := []byte{
		0x01, 0x0A, 0x00, 0x00, 0x00, // PUSH 10
		0x40, 0x0B, 0x00, 0x00, 0x00, // CALL 11
		0xFF,                         // HALT
		0x01, 0x14, 0x00, 0x00, 0x00, // f: PUSH 20
		0x10, // ADD
		0x41, // RET
	}
	require.Len(t, code, 18)
	top, ok := buildRunHalt(t, code).Top()
	require.True(t, ok)
	assert.Equal(t, int32(30), top)
}

func TestStoreThenLoadRoundTrips(t *testing.T) {
	var code []byte
	code = push(code, 7)
	code = operand(code, stackcode.STORE, 0)
	code = operand(code, stackcode.LOAD, 0)
	code = nullary(code, stackcode.HALT)

	machine := buildRunHalt(t, code)
	top, ok := machine.Top()
	require.True(t, ok)
	assert.Equal(t, int32(7), top)
	assert.Equal(t, int32(7), machine.Memory()[0])
}

// TestJzTakenSkipsInterveningPush exercises a taken branch: the PUSH 99
// in between never executes, leaving the stack empty.
func TestJzTakenSkipsInterveningPush(t *testing.T) {
	var code []byte
	code = push(code, 0)
	jzAt := len(code)
	code = operand(code, stackcode.JZ, 0) // patched below
	pushAt := len(code)
	code = push(code, 99)
	endAddr := len(code)
	code = nullary(code, stackcode.HALT)

	enc := stackcode.EncodeOperand(int32(endAddr))
	copy(code[jzAt+1:jzAt+1+4], enc[:])
	_ = pushAt

	machine := buildRunHalt(t, code)
	assert.Empty(t, machine.Stack())
}

func TestHaltOnlyProgramTerminatesCleanly(t *testing.T) {
	machine := buildRunHalt(t, []byte{byte(stackcode.HALT)})
	assert.Empty(t, machine.Stack())
}

func TestPopUnderflowReportsErrorAndLeavesStackEmpty(t *testing.T) {
	machine := vm.New([]byte{byte(stackcode.POP), byte(stackcode.HALT)})
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, vm.ErrStackUnderflow)
	assert.Empty(t, machine.Stack())
}

func TestDivisionByZeroDoesNotPop(t *testing.T) {
	var code []byte
	code = push(code, 1)
	code = push(code, 0)
	code = nullary(code, stackcode.DIV)
	code = nullary(code, stackcode.HALT)

	machine := vm.New(code)
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, vm.ErrDivisionByZero)
	assert.Equal(t, []int32{1, 0}, machine.Stack())
}

func TestReturnStackOverflow(t *testing.T) {
	// An infinite loop of self-calls will overflow the return stack
	// well before exhausting the default 1024-deep limit.
	var code []byte
	code = operand(code, stackcode.CALL, 0)

	machine := vm.New(code, vm.WithLimits(vm.Limits{StackSize: 8, RetStackSize: 4, MemSize: 8}))
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, vm.ErrReturnStackOverflow)
}

// TestPcOutOfBoundsOnEmptyImage: running a zero-length image is an
// immediate PC error.
func TestPcOutOfBoundsOnEmptyImage(t *testing.T) {
	machine := vm.New(nil)
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, vm.ErrPcOutOfBounds)
}

// TestTruncatedOperand exercises an operand-bearing opcode placed too
// close to the end of the image.
func TestTruncatedOperand(t *testing.T) {
	machine := vm.New([]byte{byte(stackcode.PUSH), 0x01, 0x00})
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, vm.ErrTruncatedOperand)
}

// TestInvalidOpcode exercises an opcode byte not in the table.
func TestInvalidOpcode(t *testing.T) {
	machine := vm.New([]byte{0x7E})
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, vm.ErrInvalidOpcode)
}

// TestInvalidJumpTargetOnlyCheckedWhenTaken: a JZ whose condition is
// false never validates its (out-of-range) target.
func TestInvalidJumpTargetOnlyCheckedWhenTaken(t *testing.T) {
	var code []byte
	code = push(code, 1) // nonzero -> JZ not taken
	code = operand(code, stackcode.JZ, 9999)
	code = nullary(code, stackcode.HALT)

	machine := buildRunHalt(t, code)
	assert.Empty(t, machine.Stack())
}

// TestInvalidJumpTargetWhenTaken is the mirror case: the branch is taken
// and the target is out of range.
func TestInvalidJumpTargetWhenTaken(t *testing.T) {
	var code []byte
	code = push(code, 0)
	code = operand(code, stackcode.JZ, 9999)

	machine := vm.New(code)
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, vm.ErrInvalidJumpTarget)
}

func TestAddWraps32Bit(t *testing.T) {
	var code []byte
	code = push(code, 2147483647)
	code = push(code, 1)
	code = nullary(code, stackcode.ADD)
	code = nullary(code, stackcode.HALT)

	top, ok := buildRunHalt(t, code).Top()
	require.True(t, ok)
	assert.Equal(t, int32(-2147483648), top)
}

// TestDupSubIsZero: PUSH x; DUP; SUB; HALT always leaves 0 on top.
func TestDupSubIsZero(t *testing.T) {
	var code []byte
	code = push(code, 4242)
	code = nullary(code, stackcode.DUP)
	code = nullary(code, stackcode.SUB)
	code = nullary(code, stackcode.HALT)

	top, ok := buildRunHalt(t, code).Top()
	require.True(t, ok)
	assert.Equal(t, int32(0), top)
}

func TestMemoryUntouchedBytesStayZero(t *testing.T) {
	var code []byte
	code = push(code, 1)
	code = operand(code, stackcode.STORE, 5)
	code = nullary(code, stackcode.HALT)

	machine := buildRunHalt(t, code)
	for i, v := range machine.Memory() {
		if i == 5 {
			assert.Equal(t, int32(1), v)
			continue
		}
		assert.Equal(t, int32(0), v, "memory[%d] should remain zero", i)
	}
}

// TestCancelViaContext exercises the context.Context extension point.
func TestCancelViaContext(t *testing.T) {
	var code []byte
	loopStart := len(code)
	code = operand(code, stackcode.JMP, int32(loopStart))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	machine := vm.New(code)
	err := machine.Run(ctx)
	require.ErrorIs(t, err, vm.ErrCancelled)
}

// TestStepLimit exercises the instruction-count ceiling extension point.
func TestStepLimit(t *testing.T) {
	var code []byte
	loopStart := len(code)
	code = operand(code, stackcode.JMP, int32(loopStart))

	machine := vm.New(code, vm.WithStepLimit(10))
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, vm.ErrStepLimitExceeded)
}
