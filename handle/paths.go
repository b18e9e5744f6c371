package handle

import "strings"

// Suffixes appended to a database's primary path for its companion files.
const (
	WALSuffix     = "-wal"
	SHMSuffix     = "-shm"
	JournalSuffix = "-journal"
)

// Paths enumerates the on-disk files of a database: the primary file plus
// the write-ahead log, shared-memory index, and rollback journal companions.
// Companion files may not exist at any given moment; Paths names where they
// live when they do.
type Paths struct {
	Primary string
	WAL     string
	SHM     string
	Journal string
}

// DerivePaths maps a primary database path to its Paths.
func DerivePaths(primary string) Paths {
	return Paths{
		Primary: primary,
		WAL:     primary + WALSuffix,
		SHM:     primary + SHMSuffix,
		Journal: primary + JournalSuffix,
	}
}

// All returns the paths ordered primary-first.
func (p Paths) All() []string {
	return []string{p.Primary, p.WAL, p.SHM, p.Journal}
}

// IsMemory is true if the path names an in-memory database, which has no
// on-disk files to snapshot or checkpoint.
func IsMemory(path string) bool {
	return path == "" || path == ":memory:" ||
		strings.HasPrefix(path, "file::memory:") ||
		strings.Contains(path, "mode=memory")
}
