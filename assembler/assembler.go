// Package assembler implements a two-pass textual-to-binary translator:
// pass 1 computes label byte-offsets, pass 2 emits opcodes and resolves
// label references. Both passes share stackcode.InstructionSize so
// addresses never drift between them.
package assembler

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gvmlang/stackvm/stackcode"
)

// MaxLabelNameLength bounds label identifiers; pass 1 rejects longer
// names. MaxSourceLineLength is the nominal source line length; the lexer
// does not check it, so longer lines are accepted.
const (
	MaxLabelNameLength  = 31
	MaxSourceLineLength = 255
)

// Limits bounds the assembler's working tables.
type Limits struct {
	MaxLabels int
}

// DefaultLimits returns the default limit (128 labels).
func DefaultLimits() Limits {
	return Limits{MaxLabels: 128}
}

// Option configures an assembly run.
type Option func(*assembly)

// WithMaxLabels overrides the default label table capacity.
func WithMaxLabels(n int) Option {
	return func(a *assembly) { a.limits.MaxLabels = n }
}

// WithLogger injects a structured logger for verbose emission tracing.
func WithLogger(l *logrus.Logger) Option {
	return func(a *assembly) { a.log = l }
}

// WithVerbose enables per-instruction emission tracing through the
// injected logger.
func WithVerbose(enabled bool) Option {
	return func(a *assembly) { a.verbose = enabled }
}

type assembly struct {
	limits  Limits
	log     *logrus.Logger
	verbose bool
}

func (a *assembly) tracef(format string, args ...any) {
	if a.verbose && a.log != nil {
		a.log.Debugf(format, args...)
	}
}

// Assemble reads line-oriented mnemonic source from r and writes the
// binary image to w. An empty source produces an empty image.
func Assemble(r io.Reader, w io.Writer, opts ...Option) error {
	a := &assembly{limits: DefaultLimits()}
	for _, opt := range opts {
		opt(a)
	}

	buf, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "assembler: reading source")
	}

	lines := lex(string(buf))

	labels, instrLines, err := a.resolveLabels(lines)
	if err != nil {
		return err
	}

	out, err := a.emit(instrLines, labels)
	if err != nil {
		return err
	}

	if _, err := w.Write(out); err != nil {
		return errors.Wrap(err, "assembler: writing image")
	}
	return nil
}

// AssembleFile opens path, assembles it, and writes the result to w. It
// is a convenience wrapper for CLI front ends that already have a
// destination writer but not an open source file.
func AssembleFile(path string, w io.Writer, opts ...Option) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "assembler: opening %s", path)
	}
	defer f.Close()
	return Assemble(f, w, opts...)
}

// Labels runs pass 1 only and returns the resolved label table, for
// tooling that wants to inspect addresses without producing an image.
func Labels(r io.Reader, opts ...Option) (map[string]int, error) {
	a := &assembly{limits: DefaultLimits()}
	for _, opt := range opts {
		opt(a)
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "assembler: reading source")
	}
	labels, _, err := a.resolveLabels(lex(string(buf)))
	return labels, err
}

// resolveLabels is pass 1: walk the lexed lines computing a running pc,
// recording (name, address) for each label definition. A label does not
// itself occupy bytes. instrLines is the subsequence of lines that are
// actual instructions (labels filtered out), parallel to the addresses
// implied by pc.
func (a *assembly) resolveLabels(lines []line) (map[string]int, []line, error) {
	labels := make(map[string]int)
	var instrLines []line
	pc := 0

	for _, ln := range lines {
		if ln.isLabel {
			name := ln.label
			if err := validateLabelName(name); err != nil {
				return nil, nil, errors.Wrapf(err, "line %d", ln.number)
			}
			if _, exists := labels[name]; exists {
				return nil, nil, errors.Wrapf(ErrDuplicateLabel, "line %d: %q", ln.number, name)
			}
			if len(labels) >= a.limits.MaxLabels {
				return nil, nil, errors.Wrapf(ErrTooManyLabels, "line %d", ln.number)
			}
			labels[name] = pc
			continue
		}

		size, ok := stackcode.InstructionSize(ln.mnemonic)
		if !ok {
			return nil, nil, errors.Wrapf(ErrUnknownMnemonic, "line %d: %q", ln.number, ln.mnemonic)
		}
		instrLines = append(instrLines, ln)
		pc += size
	}

	return labels, instrLines, nil
}

// emit is pass 2: re-walk the instruction lines (labels already
// resolved, so this is a second pass over the same source rather than a
// re-read of a file) and produce the final byte sequence.
func (a *assembly) emit(instrLines []line, labels map[string]int) ([]byte, error) {
	var out bytes.Buffer
	pc := 0

	for _, ln := range instrLines {
		op, ok := stackcode.Lookup(ln.mnemonic)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownMnemonic, "line %d: %q", ln.number, ln.mnemonic)
		}

		out.WriteByte(byte(op))

		if op.HasOperand() {
			value, err := resolveOperand(op, ln, labels)
			if err != nil {
				return nil, err
			}
			enc := stackcode.EncodeOperand(value)
			out.Write(enc[:])
			a.tracef("emit %s %d at pc=%d", op, value, pc)
		} else {
			// A trailing token after a nullary mnemonic is read but
			// never consulted, so it is dropped rather than rejected.
			a.tracef("emit %s at pc=%d", op, pc)
		}

		pc += stackcode.Size(op)
	}

	return out.Bytes(), nil
}

// resolveOperand parses the operand token for an operand-bearing
// instruction: a label reference for branch/call opcodes, a signed
// decimal integer for PUSH/LOAD/STORE.
func resolveOperand(op stackcode.Opcode, ln line, labels map[string]int) (int32, error) {
	if ln.operand == "" {
		return 0, errors.Wrapf(ErrMissingOperand, "line %d: %s", ln.number, ln.mnemonic)
	}

	switch op {
	case stackcode.JMP, stackcode.JZ, stackcode.JNZ, stackcode.CALL:
		addr, ok := labels[ln.operand]
		if !ok {
			return 0, errors.Wrapf(ErrUndefinedLabel, "line %d: %q", ln.number, ln.operand)
		}
		return int32(addr), nil

	case stackcode.PUSH, stackcode.LOAD, stackcode.STORE:
		v, err := strconv.ParseInt(ln.operand, 10, 32)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidOperand, "line %d: %q is not a valid decimal integer", ln.number, ln.operand)
		}
		return int32(v), nil

	default:
		return 0, errors.Wrapf(ErrUnexpectedOperand, "line %d: %s", ln.number, ln.mnemonic)
	}
}

func validateLabelName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty label name", ErrInvalidOperand)
	}
	if len(name) > MaxLabelNameLength {
		return fmt.Errorf("%w: label name %q exceeds %d characters", ErrInvalidOperand, name, MaxLabelNameLength)
	}
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return fmt.Errorf("%w: label name %q contains whitespace", ErrInvalidOperand, name)
	}
	if strings.Contains(name, ":") {
		return fmt.Errorf("%w: label name %q contains ':'", ErrInvalidOperand, name)
	}
	return nil
}
