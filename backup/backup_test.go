package backup

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.keystonedb.dev/core/codecs"
	"go.keystonedb.dev/core/handle"
)

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	var src = afero.NewMemMapFs()
	var primary = writeDatabaseFixture(t, src, "data/app.db", 4096, []byte("page content"))
	require.NoError(t, afero.WriteFile(src, "data/app.db-wal", []byte("wal frames"), 0644))

	var buf bytes.Buffer
	var manifest, err = Snapshot(src, handle.DerivePaths("data/app.db"), &buf, codecs.Snappy)
	require.NoError(t, err)

	assert.Len(t, manifest.ID, 36)
	assert.Equal(t, codecs.Snappy, manifest.Codec)
	assert.Equal(t, 4096, manifest.PageSize)
	assert.Equal(t, []File{
		{Role: RolePrimary, Size: int64(len(primary))},
		{Role: RoleWAL, Size: int64(len("wal frames"))},
	}, manifest.Files)

	var dst = afero.NewMemMapFs()
	var restored, rerr = Restore(dst, &buf, codecs.Snappy, "elsewhere/restored.db")
	require.NoError(t, rerr)

	assert.Equal(t, manifest.ID, restored.ID)
	assert.Equal(t, manifest.PageSize, restored.PageSize)
	assert.Equal(t, manifest.Files, restored.Files)
	assert.True(t, manifest.CreatedAt.Equal(restored.CreatedAt))

	var got, gerr = afero.ReadFile(dst, "elsewhere/restored.db")
	require.NoError(t, gerr)
	assert.Equal(t, primary, got)

	got, gerr = afero.ReadFile(dst, "elsewhere/restored.db-wal")
	require.NoError(t, gerr)
	assert.Equal(t, []byte("wal frames"), got)
}

func TestRestoreRemovesStaleSidecars(t *testing.T) {
	var src = afero.NewMemMapFs()
	writeDatabaseFixture(t, src, "app.db", 4096, nil)

	var buf bytes.Buffer
	var _, err = Snapshot(src, handle.DerivePaths("app.db"), &buf, codecs.None)
	require.NoError(t, err)

	var dst = afero.NewMemMapFs()
	for _, p := range []string{"app.db", "app.db-wal", "app.db-shm", "app.db-journal"} {
		require.NoError(t, afero.WriteFile(dst, p, []byte("stale"), 0644))
	}

	_, err = Restore(dst, &buf, codecs.None, "app.db")
	require.NoError(t, err)

	for _, p := range []string{"app.db-wal", "app.db-shm", "app.db-journal"} {
		var exists, _ = afero.Exists(dst, p)
		assert.False(t, exists, p)
	}
	var exists, _ = afero.Exists(dst, "app.db")
	assert.True(t, exists)
}

func TestSnapshotRefusesMemoryDatabases(t *testing.T) {
	var fs = afero.NewMemMapFs()
	var buf bytes.Buffer

	var _, err = Snapshot(fs, handle.DerivePaths(":memory:"), &buf, codecs.None)
	require.Error(t, err)
	assert.Regexp(t, "in-memory", err.Error())

	_, err = Restore(fs, &buf, codecs.None, ":memory:")
	require.Error(t, err)
	assert.Regexp(t, "in-memory", err.Error())
}

func TestSnapshotRequiresThePrimary(t *testing.T) {
	var fs = afero.NewMemMapFs()
	var buf bytes.Buffer

	var _, err = Snapshot(fs, handle.DerivePaths("missing.db"), &buf, codecs.None)
	require.Error(t, err)
	assert.Regexp(t, "does not exist", err.Error())
}

func TestSnapshotRejectsCorruptHeaders(t *testing.T) {
	var fs = afero.NewMemMapFs()
	var buf bytes.Buffer

	require.NoError(t, afero.WriteFile(fs, "bad.db", bytes.Repeat([]byte("x"), 200), 0644))
	var _, err = Snapshot(fs, handle.DerivePaths("bad.db"), &buf, codecs.None)
	require.Error(t, err)
	assert.Regexp(t, "not a database file", err.Error())

	require.NoError(t, afero.WriteFile(fs, "short.db", []byte("SQLite format 3\x00 and then?"), 0644))
	_, err = Snapshot(fs, handle.DerivePaths("short.db"), &buf, codecs.None)
	require.Error(t, err)
	assert.Regexp(t, "malformed database header", err.Error())
}

func TestSnapshotOfAnEmptyDatabase(t *testing.T) {
	var fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "empty.db", nil, 0644))

	var buf bytes.Buffer
	var manifest, err = Snapshot(fs, handle.DerivePaths("empty.db"), &buf, codecs.Gzip)
	require.NoError(t, err)
	assert.Zero(t, manifest.PageSize)

	var dst = afero.NewMemMapFs()
	var restored, rerr = Restore(dst, &buf, codecs.Gzip, "empty.db")
	require.NoError(t, rerr)
	assert.Equal(t, manifest.ID, restored.ID)
}

func TestRestoreRejectsMalformedArchives(t *testing.T) {
	var dst = afero.NewMemMapFs()

	var _, err = Restore(dst, bytes.NewReader([]byte("not a tar stream")), codecs.None, "app.db")
	require.Error(t, err)

	// An archive must lead with its manifest.
	var src = afero.NewMemMapFs()
	writeDatabaseFixture(t, src, "app.db", 4096, nil)

	var buf bytes.Buffer
	var fi, serr = src.Stat("app.db")
	require.NoError(t, serr)
	var f, ferr = src.Open("app.db")
	require.NoError(t, ferr)
	defer f.Close()

	var tw = tar.NewWriter(&buf)
	require.NoError(t, writeEntry(tw, string(RolePrimary), fi.Size(), f, fi.ModTime()))
	require.NoError(t, tw.Close())

	_, err = Restore(dst, &buf, codecs.None, "app.db")
	require.Error(t, err)
	assert.Regexp(t, "must begin with", err.Error())
}

func writeDatabaseFixture(t *testing.T, fs afero.Fs, path string, pageSize int, body []byte) []byte {
	var hdr = make([]byte, 100)
	copy(hdr, sqliteMagic)
	binary.BigEndian.PutUint16(hdr[16:18], uint16(pageSize))

	var content = append(hdr, body...)
	require.NoError(t, afero.WriteFile(fs, path, content, 0644))
	return content
}
