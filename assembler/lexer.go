package assembler

import "strings"

// line is one non-empty, comment-stripped source line, classified as
// either a label definition or an instruction with an optional operand
// token. Trailing junk on an instruction line beyond the first two
// whitespace-separated tokens is ignored.
type line struct {
	number int // 1-based source line number, for diagnostics

	isLabel bool
	label   string

	mnemonic string
	operand  string // second token of the line, empty if there is none
}

// stripComment removes everything from the first ';' onward.
func stripComment(s string) string {
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// lex turns raw source text into a sequence of non-blank lines. Blank
// lines (after comment-stripping and trimming) are dropped entirely;
// they carry no address and pass 1 must never count them.
func lex(source string) []line {
	var out []line
	for i, raw := range strings.Split(source, "\n") {
		text := strings.TrimSpace(stripComment(raw))
		if text == "" {
			continue
		}
		out = append(out, classify(i+1, text))
	}
	return out
}

// classify recognizes a label definition (line ends in ':') versus an
// instruction line (mnemonic plus an optional operand token). A line is
// never both: only the final character is checked, so "label: INSTR" on
// one line is an instruction line whose mnemonic is "label:" (rejected
// later as an unknown mnemonic), and "INSTR label:" is a label whose name
// contains whitespace (rejected later by label-name validation).
func classify(number int, text string) line {
	if strings.HasSuffix(text, ":") {
		return line{number: number, isLabel: true, label: strings.TrimSuffix(text, ":")}
	}
	fields := strings.Fields(text)
	l := line{number: number, mnemonic: fields[0]}
	if len(fields) > 1 {
		l.operand = fields[1]
	}
	return l
}
