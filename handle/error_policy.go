package handle

import (
	log "github.com/sirupsen/logrus"

	"go.keystonedb.dev/core/engine"
)

// errorGate routes engine failures through the handle's ignorable-code
// stack. A failure is always returned to the caller; the stack controls
// only whether it is also reported (logged and counted) or suppressed.
type errorGate struct {
	ignorable []engine.Code
	lastErr   *engine.Error
}

func (g *errorGate) push(c engine.Code) {
	g.ignorable = append(g.ignorable, c.Primary())
}

func (g *errorGate) pop() {
	if n := len(g.ignorable); n != 0 {
		g.ignorable = g.ignorable[:n-1]
	}
}

// suppresses is true if the top-of-stack entry matches the failure's
// primary code. Entries below the top are not consulted, and misuse is
// never suppressed.
func (g *errorGate) suppresses(c engine.Code) bool {
	if c.Misuse() {
		return false
	}
	var n = len(g.ignorable)
	return n != 0 && g.ignorable[n-1] == c.Primary()
}

// MarkErrorAsIgnorable pushes |code| onto the handle's ignorable stack.
// While it remains the top entry, failures whose primary code matches are
// suppressed from reporting but still returned to callers. Scopes nest;
// each call must be balanced by MarkErrorAsUnignorable.
func (h *Handle) MarkErrorAsIgnorable(code engine.Code) { h.gate.push(code) }

// MarkErrorAsUnignorable pops the most recent ignorable scope. Popping an
// empty stack is a no-op.
func (h *Handle) MarkErrorAsUnignorable() { h.gate.pop() }

// LastError returns the most recent engine failure recorded by this handle,
// or nil if none has occurred. Suppressed failures are recorded exactly as
// reported ones are.
func (h *Handle) LastError() *engine.Error { return h.gate.lastErr }

// withIgnorable runs |fn| under a bounded ignorable scope for |code|.
func (h *Handle) withIgnorable(code engine.Code, fn func() error) error {
	h.gate.push(code)
	defer h.gate.pop()
	return fn()
}

// finish converts a non-OK engine |code| into an *engine.Error, records it
// as the handle's last error, and reports or suppresses it per the
// ignorable stack. Callers receive the error in either case.
func (h *Handle) finish(code engine.Code, sql string) error {
	if code.OK() {
		return nil
	}
	var e = &engine.Error{
		Code:    code.Primary(),
		ExtCode: code,
		Message: code.String(),
		SQL:     sql,
		Path:    h.path,
	}
	if h.conn != nil {
		if m := h.conn.ErrMsg(); m != "" {
			e.Message = m
		}
		if x := h.conn.ExtendedErrCode(); x.Primary() == code.Primary() {
			e.ExtCode = x
		}
	}
	return h.fail(e)
}

// misuse records an API misuse failure with an explanatory message.
func (h *Handle) misuse(msg, sql string) error {
	return h.fail(&engine.Error{
		Code:    engine.CodeMisuse,
		ExtCode: engine.CodeMisuse,
		Message: msg,
		SQL:     sql,
		Path:    h.path,
	})
}

// abort records a statement step vetoed by a will-step hook.
func (h *Handle) abort(cause error, sql string) error {
	return h.fail(&engine.Error{
		Code:    engine.CodeAbort,
		ExtCode: engine.CodeAbort,
		Message: cause.Error(),
		SQL:     sql,
		Path:    h.path,
	})
}

// fail records |e| as the handle's last error and reports or suppresses it.
func (h *Handle) fail(e *engine.Error) error {
	h.gate.lastErr = e

	if h.gate.suppresses(e.ExtCode) {
		engineErrorsTotal.WithLabelValues("suppressed").Inc()
		log.WithFields(log.Fields{
			"handle": h.tag,
			"code":   e.ExtCode,
		}).Debug("suppressed engine error")
	} else {
		engineErrorsTotal.WithLabelValues("reported").Inc()
		log.WithFields(log.Fields{
			"handle":  h.tag,
			"path":    e.Path,
			"code":    e.Code,
			"extCode": e.ExtCode,
			"sql":     e.SQL,
			"err":     e.Message,
		}).Error("engine operation failed")
	}
	return e
}
