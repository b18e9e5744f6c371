// Package backup captures and restores point-in-time snapshots of a
// database file set, as a compressed tar stream led by a YAML manifest.
package backup

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v2"

	"go.keystonedb.dev/core/codecs"
	"go.keystonedb.dev/core/handle"
)

// ManifestName is the name of the manifest entry leading a backup archive.
const ManifestName = "MANIFEST.yaml"

// FileRole names the position a file holds within a database file set.
type FileRole string

const (
	RolePrimary FileRole = "primary"
	RoleWAL     FileRole = "wal"
	RoleJournal FileRole = "journal"
)

func (r FileRole) targetPath(paths handle.Paths) (string, error) {
	switch r {
	case RolePrimary:
		return paths.Primary, nil
	case RoleWAL:
		return paths.WAL, nil
	case RoleJournal:
		return paths.Journal, nil
	default:
		return "", errors.Errorf("unknown file role %q", string(r))
	}
}

// File is a manifest entry describing one archived file.
type File struct {
	Role FileRole `yaml:"role"`
	Size int64    `yaml:"size"`
}

// Manifest describes a backup archive: its identity, the codec it was
// written with, the database page size, and the archived file set.
type Manifest struct {
	ID        string       `yaml:"id"`
	CreatedAt time.Time    `yaml:"created_at"`
	Codec     codecs.Codec `yaml:"codec"`
	PageSize  int          `yaml:"page_size"`
	Files     []File       `yaml:"files"`
}

// Snapshot archives the database file set of |paths| from |fs| into |w|,
// encoded with |codec|. The primary database and any write-ahead log or
// rollback journal present are captured. Shared-memory files are not, as
// the engine reconstructs them on open. The handle owning the file set
// should be closed, or checkpointed and idle, for a consistent capture.
func Snapshot(fs afero.Fs, paths handle.Paths, w io.Writer, codec codecs.Codec) (Manifest, error) {
	if handle.IsMemory(paths.Primary) {
		return Manifest{}, errors.New("cannot snapshot an in-memory database")
	} else if paths.Primary == "" {
		return Manifest{}, errors.New("no primary database path")
	}

	var pageSize, err = readPageSize(fs, paths.Primary)
	if os.IsNotExist(errors.Cause(err)) {
		return Manifest{}, errors.Errorf("primary database %s does not exist", paths.Primary)
	} else if err != nil {
		return Manifest{}, errors.WithMessage(err, "reading database header")
	}

	var manifest = Manifest{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Codec:     codec,
		PageSize:  pageSize,
	}

	type member struct {
		role FileRole
		path string
		size int64
	}
	var members []member

	for _, m := range []struct {
		role FileRole
		path string
	}{
		{RolePrimary, paths.Primary},
		{RoleWAL, paths.WAL},
		{RoleJournal, paths.Journal},
	} {
		var fi, err = fs.Stat(m.path)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return Manifest{}, errors.WithMessagef(err, "stat of %s", m.path)
		}
		members = append(members, member{m.role, m.path, fi.Size()})
		manifest.Files = append(manifest.Files, File{Role: m.role, Size: fi.Size()})
	}

	var cw codecs.Compressor
	if cw, err = codecs.NewCodecWriter(w, codec); err != nil {
		return Manifest{}, err
	}
	var tw = tar.NewWriter(cw)

	var doc []byte
	if doc, err = yaml.Marshal(&manifest); err != nil {
		return Manifest{}, errors.WithMessage(err, "encoding manifest")
	}
	if err = writeEntry(tw, ManifestName, int64(len(doc)), bytes.NewReader(doc), manifest.CreatedAt); err != nil {
		return Manifest{}, errors.WithMessage(err, "archiving manifest")
	}

	for _, m := range members {
		var f afero.File
		if f, err = fs.Open(m.path); err != nil {
			return Manifest{}, errors.WithMessagef(err, "opening %s", m.path)
		}
		err = writeEntry(tw, string(m.role), m.size, f, manifest.CreatedAt)
		f.Close()
		if err != nil {
			return Manifest{}, errors.WithMessagef(err, "archiving %s", m.path)
		}
	}

	if err = tw.Close(); err != nil {
		return Manifest{}, errors.WithMessage(err, "closing archive")
	} else if err = cw.Close(); err != nil {
		return Manifest{}, errors.WithMessage(err, "closing compressor")
	}
	return manifest, nil
}

// Restore extracts a backup archive |r| encoded with |codec| into |fs|,
// placing files at the path set derived from |primaryPath|. Sidecar files
// not present in the archive are removed, as the engine would otherwise
// replay a stale log against the restored database.
func Restore(fs afero.Fs, r io.Reader, codec codecs.Codec, primaryPath string) (Manifest, error) {
	if handle.IsMemory(primaryPath) {
		return Manifest{}, errors.New("cannot restore to an in-memory database")
	} else if primaryPath == "" {
		return Manifest{}, errors.New("no primary database path")
	}
	var paths = handle.DerivePaths(primaryPath)

	var cr, err = codecs.NewCodecReader(r, codec)
	if err != nil {
		return Manifest{}, err
	}
	defer cr.Close()

	var tr = tar.NewReader(cr)

	var hdr *tar.Header
	if hdr, err = tr.Next(); err != nil {
		return Manifest{}, errors.WithMessage(err, "reading archive")
	} else if hdr.Name != ManifestName {
		return Manifest{}, errors.Errorf("archive must begin with %s (got %q)", ManifestName, hdr.Name)
	}

	var doc []byte
	if doc, err = ioutil.ReadAll(tr); err != nil {
		return Manifest{}, errors.WithMessage(err, "reading manifest")
	}
	var manifest Manifest
	if err = yaml.Unmarshal(doc, &manifest); err != nil {
		return Manifest{}, errors.WithMessage(err, "decoding manifest")
	}

	var restored = make(map[FileRole]bool)
	for {
		if hdr, err = tr.Next(); err == io.EOF {
			break
		} else if err != nil {
			return Manifest{}, errors.WithMessage(err, "reading archive")
		}

		var role = FileRole(hdr.Name)
		var target string
		if target, err = role.targetPath(paths); err != nil {
			return Manifest{}, err
		}
		if err = afero.WriteReader(fs, target, tr); err != nil {
			return Manifest{}, errors.WithMessagef(err, "restoring %s", target)
		}
		restored[role] = true
	}
	if !restored[RolePrimary] {
		return Manifest{}, errors.New("archive has no primary database")
	}

	for role, path := range map[FileRole]string{
		RoleWAL:     paths.WAL,
		RoleJournal: paths.Journal,
	} {
		if restored[role] {
			continue
		}
		if err = fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return Manifest{}, errors.WithMessagef(err, "removing stale %s", path)
		}
	}
	if err = fs.Remove(paths.SHM); err != nil && !os.IsNotExist(err) {
		return Manifest{}, errors.WithMessagef(err, "removing stale %s", paths.SHM)
	}
	return manifest, nil
}

func writeEntry(tw *tar.Writer, name string, size int64, r io.Reader, at time.Time) error {
	if err := tw.WriteHeader(&tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    size,
		ModTime: at,
	}); err != nil {
		return err
	}
	var n, err = io.Copy(tw, r)
	if err != nil {
		return err
	} else if n != size {
		return errors.Errorf("short copy of %s (%d of %d bytes)", name, n, size)
	}
	return nil
}

// sqliteMagic heads every non-empty database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// readPageSize extracts the page size from the database file header at
// |path|. A newly created, zero-length database reports zero.
func readPageSize(fs afero.Fs, path string) (int, error) {
	var f, err = fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var hdr [100]byte
	var n int
	if n, err = io.ReadFull(f, hdr[:]); err == io.EOF {
		return 0, nil
	} else if err == io.ErrUnexpectedEOF {
		return 0, errors.Errorf("malformed database header (%d bytes)", n)
	} else if err != nil {
		return 0, err
	}

	if !bytes.Equal(hdr[:len(sqliteMagic)], sqliteMagic) {
		return 0, errors.New("not a database file")
	}
	// Encoded big-endian at offset 16. The value 1 denotes 64 KiB.
	var page = int(binary.BigEndian.Uint16(hdr[16:18]))
	if page == 1 {
		page = 65536
	}
	return page, nil
}
