package engine

import "fmt"

// Code is a result code returned by the storage engine. The low byte is the
// primary code; extended codes refine a primary code in the upper bits.
type Code int

// Primary result codes.
const (
	CodeOK         Code = 0
	CodeError      Code = 1
	CodeInternal   Code = 2
	CodePerm       Code = 3
	CodeAbort      Code = 4
	CodeBusy       Code = 5
	CodeLocked     Code = 6
	CodeNoMem      Code = 7
	CodeReadOnly   Code = 8
	CodeInterrupt  Code = 9
	CodeIOErr      Code = 10
	CodeCorrupt    Code = 11
	CodeNotFound   Code = 12
	CodeFull       Code = 13
	CodeCantOpen   Code = 14
	CodeProtocol   Code = 15
	CodeSchema     Code = 17
	CodeTooBig     Code = 18
	CodeConstraint Code = 19
	CodeMismatch   Code = 20
	CodeMisuse     Code = 21
	CodeNoLFS      Code = 22
	CodeAuth       Code = 23
	CodeRange      Code = 25
	CodeNotADB     Code = 26
	CodeNotice     Code = 27
	CodeWarning    Code = 28
)

// Terminal step codes. Both report success of a Step.
const (
	CodeRow  Code = 100
	CodeDone Code = 101
)

// Extended result codes the handle layer distinguishes.
const (
	CodeBusyRecovered        = CodeBusy | (1 << 8)
	CodeBusySnapshot         = CodeBusy | (2 << 8)
	CodeLockedSharedCache    = CodeLocked | (1 << 8)
	CodeConstraintCheck      = CodeConstraint | (1 << 8)
	CodeConstraintForeignKey = CodeConstraint | (3 << 8)
	CodeConstraintNotNull    = CodeConstraint | (5 << 8)
	CodeConstraintPrimaryKey = CodeConstraint | (6 << 8)
	CodeConstraintUnique     = CodeConstraint | (8 << 8)
	CodeConstraintRowID      = CodeConstraint | (10 << 8)
	CodeCorruptVTab          = CodeCorrupt | (1 << 8)
	CodeCorruptSequence      = CodeCorrupt | (2 << 8)
	CodeCorruptIndex         = CodeCorrupt | (3 << 8)
	CodeReadOnlyRecovery     = CodeReadOnly | (1 << 8)
	CodeReadOnlyCantLock     = CodeReadOnly | (2 << 8)
	CodeInterruptRetry       = CodeInterrupt | (1 << 8)
)

// Primary masks c to its primary code.
func (c Code) Primary() Code { return c & 0xff }

// OK reports whether c signals success, including the terminal step codes.
func (c Code) OK() bool {
	return c == CodeOK || c == CodeRow || c == CodeDone
}

// Busy reports whether c signals lock contention.
func (c Code) Busy() bool {
	var p = c.Primary()
	return p == CodeBusy || p == CodeLocked
}

// Constraint reports whether c signals a constraint violation.
func (c Code) Constraint() bool { return c.Primary() == CodeConstraint }

// Corrupt reports whether c signals database corruption.
func (c Code) Corrupt() bool {
	var p = c.Primary()
	return p == CodeCorrupt || p == CodeNotADB
}

// Misuse reports whether c signals interface misuse, a programmer error
// that is never eligible for suppression.
func (c Code) Misuse() bool { return c.Primary() == CodeMisuse }

// Interrupted reports whether c signals a cancelled operation.
func (c Code) Interrupted() bool { return c.Primary() == CodeInterrupt }

var codeStrings = map[Code]string{
	CodeOK:         "OK",
	CodeError:      "ERROR",
	CodeInternal:   "INTERNAL",
	CodePerm:       "PERM",
	CodeAbort:      "ABORT",
	CodeBusy:       "BUSY",
	CodeLocked:     "LOCKED",
	CodeNoMem:      "NOMEM",
	CodeReadOnly:   "READONLY",
	CodeInterrupt:  "INTERRUPT",
	CodeIOErr:      "IOERR",
	CodeCorrupt:    "CORRUPT",
	CodeNotFound:   "NOTFOUND",
	CodeFull:       "FULL",
	CodeCantOpen:   "CANTOPEN",
	CodeProtocol:   "PROTOCOL",
	CodeSchema:     "SCHEMA",
	CodeTooBig:     "TOOBIG",
	CodeConstraint: "CONSTRAINT",
	CodeMismatch:   "MISMATCH",
	CodeMisuse:     "MISUSE",
	CodeNoLFS:      "NOLFS",
	CodeAuth:       "AUTH",
	CodeRange:      "RANGE",
	CodeNotADB:     "NOTADB",
	CodeNotice:     "NOTICE",
	CodeWarning:    "WARNING",
	CodeRow:        "ROW",
	CodeDone:       "DONE",
}

// String returns the engine's symbolic name for c. Extended codes render as
// the primary name plus the extension ordinal.
func (c Code) String() string {
	if s, ok := codeStrings[c]; ok {
		return s
	}
	if s, ok := codeStrings[c.Primary()]; ok {
		return fmt.Sprintf("%s(%d)", s, c>>8)
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(c))
}
