// Package vm implements the stack machine: a fetch-decode-execute loop
// over an immutable code image, a value stack, a disjoint return stack,
// and a linear memory array. See stackcode for the shared opcode table.
package vm

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Limits pins the fixed-capacity working areas. The defaults
// (1024/1024/1024) are hard limits, not hints: overflow is a reportable
// error, not a prompt to grow. A caller may override them via WithLimits.
type Limits struct {
	StackSize    int
	RetStackSize int
	MemSize      int
}

// DefaultLimits returns the reference limits (1024 each).
func DefaultLimits() Limits {
	return Limits{StackSize: 1024, RetStackSize: 1024, MemSize: 1024}
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithLimits overrides the default fixed-capacity sizes.
func WithLimits(l Limits) Option {
	return func(vm *VM) { vm.limits = l }
}

// WithLogger injects a structured logger used for --trace output. The
// zero value (nil) means tracing is a no-op.
func WithLogger(l *logrus.Logger) Option {
	return func(vm *VM) { vm.log = l }
}

// WithTrace enables per-instruction debug logging of pc/opcode/stack
// depth through the injected logger.
func WithTrace(enabled bool) Option {
	return func(vm *VM) { vm.trace = enabled }
}

// WithStepLimit bounds the number of fetch-decode-execute cycles Run will
// perform before stopping with ErrStepLimitExceeded. Zero (the default)
// means unbounded, matching the reference VM which has no such ceiling.
func WithStepLimit(n int) Option {
	return func(vm *VM) { vm.stepLimit = n }
}

// ErrStepLimitExceeded is returned by Run when WithStepLimit's ceiling is
// reached: an instruction-count ceiling checked at each fetch.
var ErrStepLimitExceeded = errors.New("vm: step limit exceeded")

// VM is one interpreter instance over a fixed code image. It is not
// goroutine-safe; a single goroutine must own it for its lifetime.
type VM struct {
	code []byte

	pc      int
	running bool

	stack []int32
	sp    int

	retStack []int
	rsp      int

	memory []int32

	limits Limits

	log       *logrus.Logger
	trace     bool
	stepLimit int
}

// New binds code as the VM's read-only code image and resets all working
// state: pc=0, sp=rsp=-1, running=true, memory zeroed. The code image's
// lifetime must strictly contain the VM's. The VM holds a borrow, not an
// owning copy.
func New(code []byte, opts ...Option) *VM {
	vm := &VM{
		code:    code,
		pc:      0,
		running: true,
		sp:      -1,
		rsp:     -1,
		limits:  DefaultLimits(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.stack = make([]int32, vm.limits.StackSize)
	vm.retStack = make([]int, vm.limits.RetStackSize)
	vm.memory = make([]int32, vm.limits.MemSize)
	return vm
}

// Stack returns the live portion of the value stack, bottom first. It is
// a read-only view for post-mortem inspection; callers must not mutate
// the backing array while Run is active.
func (vm *VM) Stack() []int32 {
	return vm.stack[:vm.sp+1]
}

// Memory returns the full linear memory array for post-mortem inspection.
func (vm *VM) Memory() []int32 {
	return vm.memory
}

// Top returns the top-of-stack value and true, or 0 and false if the
// value stack is empty.
func (vm *VM) Top() (int32, bool) {
	if vm.sp < 0 {
		return 0, false
	}
	return vm.stack[vm.sp], true
}

// PC returns the current program counter, useful for error reporting
// after Run returns.
func (vm *VM) PC() int {
	return vm.pc
}

func (vm *VM) tracef(format string, args ...any) {
	if vm.trace && vm.log != nil {
		vm.log.Debugf(format, args...)
	}
}
