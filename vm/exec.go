package vm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gvmlang/stackvm/stackcode"
)

// Run executes instructions until HALT or a fatal error. Each instruction
// either commits all of its state changes or, on a guard failure before
// the effect, commits none; there is no partial-instruction unwind.
//
// ctx is checked once per fetch, letting a caller bound execution
// externally without threading a cancellation flag through step(). A nil
// ctx is treated as context.Background (never cancels).
func (vm *VM) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	steps := 0
	for vm.running {
		if err := ctx.Err(); err != nil {
			vm.running = false
			return errors.Wrapf(ErrCancelled, "pc=%d: %s", vm.pc, err.Error())
		}
		if vm.stepLimit > 0 {
			steps++
			if steps > vm.stepLimit {
				vm.running = false
				return errors.Wrapf(ErrStepLimitExceeded, "pc=%d", vm.pc)
			}
		}
		if err := vm.step(); err != nil {
			vm.running = false
			if err == errHalt {
				return nil
			}
			return err
		}
	}
	return nil
}

// errHalt is an internal sentinel distinguishing a clean HALT from a
// fatal error; Run translates it to a nil error.
var errHalt = errors.New("vm: halted")

func (vm *VM) step() error {
	if vm.pc < 0 || vm.pc >= len(vm.code) {
		return errors.Wrapf(ErrPcOutOfBounds, "pc=%d code_size=%d", vm.pc, len(vm.code))
	}

	op := stackcode.Opcode(vm.code[vm.pc])

	var operand int32
	if op.HasOperand() {
		if vm.pc+stackcode.OperandBytes >= len(vm.code) {
			return errors.Wrapf(ErrTruncatedOperand, "pc=%d code_size=%d", vm.pc, len(vm.code))
		}
		operand = stackcode.DecodeOperand(vm.code[vm.pc+1 : vm.pc+1+stackcode.OperandBytes])
	}

	vm.tracef("pc=%d op=%s operand=%d sp=%d rsp=%d", vm.pc, op, operand, vm.sp, vm.rsp)

	switch op {
	case stackcode.PUSH:
		if err := vm.push(operand); err != nil {
			return err
		}
		vm.pc += stackcode.OperandBearingBytes

	case stackcode.POP:
		if _, err := vm.pop(); err != nil {
			return err
		}
		vm.pc += stackcode.NullaryBytes

	case stackcode.DUP:
		top, err := vm.peek()
		if err != nil {
			return err
		}
		if err := vm.push(top); err != nil {
			return err
		}
		vm.pc += stackcode.NullaryBytes

	case stackcode.ADD, stackcode.SUB, stackcode.MUL, stackcode.DIV, stackcode.CMP:
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			// a was never popped: restore b so the stack is unmodified
			// on a guard failure, matching "commits none" semantics.
			vm.stack[vm.sp+1] = b
			vm.sp++
			return err
		}
		result, err := arith(op, a, b)
		if err != nil {
			// Division by zero: restore both operands untouched.
			vm.stack[vm.sp+1] = a
			vm.sp++
			vm.stack[vm.sp+1] = b
			vm.sp++
			return errors.Wrapf(err, "pc=%d", vm.pc)
		}
		if err := vm.push(result); err != nil {
			return err
		}
		vm.pc += stackcode.NullaryBytes

	case stackcode.JMP:
		target := int(operand)
		if err := vm.checkJumpTarget(target); err != nil {
			return err
		}
		vm.pc = target

	case stackcode.JZ, stackcode.JNZ:
		cond, err := vm.peek()
		if err != nil {
			return err
		}
		taken := (op == stackcode.JZ && cond == 0) || (op == stackcode.JNZ && cond != 0)
		target := int(operand)
		if taken {
			if err := vm.checkJumpTarget(target); err != nil {
				return err
			}
		}
		vm.sp--
		if !taken {
			vm.pc += stackcode.OperandBearingBytes
			return nil
		}
		vm.pc = target

	case stackcode.STORE:
		idx := int(operand)
		if idx < 0 || idx >= len(vm.memory) {
			return errors.Wrapf(ErrInvalidMemoryIndex, "pc=%d idx=%d", vm.pc, idx)
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.memory[idx] = v
		vm.pc += stackcode.OperandBearingBytes

	case stackcode.LOAD:
		idx := int(operand)
		if idx < 0 || idx >= len(vm.memory) {
			return errors.Wrapf(ErrInvalidMemoryIndex, "pc=%d idx=%d", vm.pc, idx)
		}
		if err := vm.push(vm.memory[idx]); err != nil {
			return err
		}
		vm.pc += stackcode.OperandBearingBytes

	case stackcode.CALL:
		target := int(operand)
		if err := vm.checkJumpTarget(target); err != nil {
			return err
		}
		if vm.rsp+1 >= len(vm.retStack) {
			return errors.Wrapf(ErrReturnStackOverflow, "pc=%d", vm.pc)
		}
		vm.rsp++
		vm.retStack[vm.rsp] = vm.pc + stackcode.OperandBearingBytes
		vm.pc = target

	case stackcode.RET:
		if vm.rsp < 0 {
			return errors.Wrapf(ErrReturnStackUnderflow, "pc=%d", vm.pc)
		}
		target := vm.retStack[vm.rsp]
		vm.rsp--
		vm.pc = target

	case stackcode.HALT:
		vm.running = false
		return errHalt

	default:
		return errors.Wrapf(ErrInvalidOpcode, "pc=%d opcode=0x%02x", vm.pc, byte(op))
	}

	return nil
}

// arith implements ADD/SUB/MUL/DIV/CMP given the pre-pop operands in
// order (a, b) where b was on top: CMP reports whether the value pushed
// first (a) is less than the value pushed second (b).
func arith(op stackcode.Opcode, a, b int32) (int32, error) {
	switch op {
	case stackcode.ADD:
		return a + b, nil
	case stackcode.SUB:
		return a - b, nil
	case stackcode.MUL:
		return a * b, nil
	case stackcode.DIV:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	case stackcode.CMP:
		if a < b {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errors.Wrapf(ErrInvalidOpcode, "unexpected arithmetic opcode 0x%02x", byte(op))
	}
}

func (vm *VM) checkJumpTarget(target int) error {
	if target < 0 || target >= len(vm.code) {
		return errors.Wrapf(ErrInvalidJumpTarget, "pc=%d target=%d code_size=%d", vm.pc, target, len(vm.code))
	}
	return nil
}

func (vm *VM) push(v int32) error {
	if vm.sp+1 >= len(vm.stack) {
		return errors.Wrapf(ErrStackOverflow, "pc=%d", vm.pc)
	}
	vm.sp++
	vm.stack[vm.sp] = v
	return nil
}

func (vm *VM) pop() (int32, error) {
	if vm.sp < 0 {
		return 0, errors.Wrapf(ErrStackUnderflow, "pc=%d", vm.pc)
	}
	v := vm.stack[vm.sp]
	vm.sp--
	return v, nil
}

func (vm *VM) peek() (int32, error) {
	if vm.sp < 0 {
		return 0, errors.Wrapf(ErrStackUnderflow, "pc=%d", vm.pc)
	}
	return vm.stack[vm.sp], nil
}
