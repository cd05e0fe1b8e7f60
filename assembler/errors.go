package assembler

import "errors"

// Fatal error kinds. All are terminal: assembly stops at the first one.
var (
	ErrTooManyLabels     = errors.New("assembler: too many labels")
	ErrUndefinedLabel    = errors.New("assembler: undefined label")
	ErrUnknownMnemonic   = errors.New("assembler: unknown mnemonic")
	ErrDuplicateLabel    = errors.New("assembler: duplicate label")
	ErrInvalidOperand    = errors.New("assembler: invalid operand")
	ErrMissingOperand    = errors.New("assembler: missing operand")
	ErrUnexpectedOperand = errors.New("assembler: instruction does not take an operand")
)
