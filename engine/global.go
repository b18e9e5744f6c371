package engine

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Global is process-wide engine configuration. It must be applied at most
// once, before any connection opens; bindings consult it when opening.
type Global struct {
	// Multithread allows concurrent use of distinct connections from
	// distinct threads. Single connections remain single-owner.
	Multithread bool
	// MemoryStatus enables the engine's memory accounting.
	MemoryStatus bool
	// MemoryMapSize bounds the per-connection memory map, in bytes.
	// Zero leaves the engine default in place.
	MemoryMapSize int64
	// Log receives engine-level diagnostics not tied to a connection.
	Log func(code Code, msg string)
	// VFSOpened is invoked with the path of each file the engine opens.
	VFSOpened func(path string)
}

var (
	globalMu      sync.Mutex
	globalApplied bool
	globalCfg     Global
)

// Configure applies cfg process-wide. The first call wins and returns true;
// later calls are ignored with a warning. Connections opened before
// Configure observe the zero Global.
func Configure(cfg Global) bool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalApplied {
		log.WithField("cfg", cfg).Warn("engine already configured; ignoring")
		return false
	}
	globalApplied, globalCfg = true, cfg
	return true
}

// GlobalConfig returns the applied process-wide configuration, or the zero
// Global if Configure has not run.
func GlobalConfig() Global {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalCfg
}

// NotifyVFSOpened invokes the configured VFS-open hook, if any. Bindings
// call it as they open database files.
func NotifyVFSOpened(path string) {
	if fn := GlobalConfig().VFSOpened; fn != nil {
		fn(path)
	}
}

// NotifyLog routes an engine diagnostic to the configured global log sink,
// falling back to debug-level process logging.
func NotifyLog(code Code, msg string) {
	if fn := GlobalConfig().Log; fn != nil {
		fn(code, msg)
		return
	}
	log.WithFields(log.Fields{"code": code, "msg": msg}).Debug("engine log")
}

// resetGlobal clears applied configuration. Test use only.
func resetGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalApplied, globalCfg = false, Global{}
}
