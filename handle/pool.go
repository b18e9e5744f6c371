package handle

import (
	"github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
)

// statementPool tracks Statements loaned to callers and those free for
// reuse. The handle retains ownership of every Statement it vends.
type statementPool struct {
	free        []*Statement
	outstanding map[*Statement]struct{}
}

func newStatementPool() statementPool {
	return statementPool{outstanding: make(map[*Statement]struct{})}
}

func (p *statementPool) get(h *Handle) *Statement {
	var s *Statement
	if n := len(p.free); n != 0 {
		s, p.free = p.free[n-1], p.free[:n-1]
	} else {
		s = &Statement{h: h}
	}
	p.outstanding[s] = struct{}{}
	return s
}

// put moves |s| from outstanding to the free list. It returns false for a
// statement this pool didn't vend, or one which was already returned.
func (p *statementPool) put(s *Statement) bool {
	if _, ok := p.outstanding[s]; !ok {
		return false
	}
	delete(p.outstanding, s)
	p.free = append(p.free, s)
	return true
}

// finalizeAll finalizes every pooled statement, outstanding and free alike.
// Finalization failures are reported through the handle's error gate.
func (p *statementPool) finalizeAll() {
	for s := range p.outstanding {
		_ = s.Finalize()
		delete(p.outstanding, s)
	}
	for _, s := range p.free {
		_ = s.Finalize()
	}
	p.free = p.free[:0]
}

// cachedStmts is an LRU of prepared statements keyed by their SQL text,
// backing ExecuteSQL and the handle's internal queries. Evicted statements
// are finalized.
type cachedStmts struct {
	h   *Handle
	lru *lru.Cache
}

func newCachedStmts(h *Handle, size int) *cachedStmts {
	var c = &cachedStmts{h: h}
	var cache, err = lru.NewWithEvict(size, func(key, value interface{}) {
		if err := value.(*Statement).Finalize(); err != nil {
			log.WithFields(log.Fields{"sql": key, "err": err}).
				Warn("failed to finalize evicted statement")
		}
	})
	if err != nil {
		panic(err.Error()) // Only errors on size <= 0.
	}
	c.lru = cache
	return c
}

// get returns a reset, prepared statement for |sql|, preparing and caching
// one on miss.
func (c *cachedStmts) get(sql string) (*Statement, error) {
	if v, ok := c.lru.Get(sql); ok {
		var s = v.(*Statement)
		if err := s.Prepare(sql); err != nil {
			return nil, err
		}
		return s, nil
	}
	var s = &Statement{h: c.h}
	if err := s.Prepare(sql); err != nil {
		return nil, err
	}
	c.lru.Add(sql, s)
	return s, nil
}

// purge finalizes and drops all cached statements.
func (c *cachedStmts) purge() { c.lru.Purge() }

// GetStatement vends a Statement from the handle's pool. The caller readies
// it with Prepare and gives it back with ReturnStatement. Statements still
// outstanding when the handle closes are finalized by Close.
func (h *Handle) GetStatement() *Statement {
	return h.pool.get(h)
}

// ReturnStatement resets |s|, clears its bindings, and pools it for reuse.
// Statements not vended by GetStatement, or already returned, are ignored.
func (h *Handle) ReturnStatement(s *Statement) {
	if s == nil || !h.pool.put(s) {
		return
	}
	_ = s.Reset()
	_ = s.ClearBindings()
}
