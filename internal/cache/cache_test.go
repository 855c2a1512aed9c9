package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/protomod/internal/registry"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.NotEqual(t, Key("a"), Key("a", ""))
	assert.False(t, Key().IsZero())
	assert.Len(t, Key("x").String(), 64)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.proto", "syntax = \"proto3\";")
	b := writeFile(t, dir, "b.proto", "syntax = \"proto3\";")

	da, err := HashFile(a)
	require.NoError(t, err)
	db, err := HashFile(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	_, err = HashFile(filepath.Join(dir, "missing.proto"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDiskCache_PutGet(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)

	src := writeFile(t, t.TempDir(), "test.proto", "package test;")
	payload := &Payload{
		Name:   "test",
		Inputs: []string{"test.proto"},
		Units: []registry.CompiledUnit{{
			Name:         "test.proto",
			Package:      "test",
			Descriptor:   []byte{0x0A, 0x01, 'x'},
			Dependencies: []string{"google.protobuf.timestamp"},
			Stub:         "// test.proto\n",
		}},
	}
	require.NoError(t, payload.Record([]string{src}))

	key := Key("units", "test.proto")
	require.NoError(t, c.Put(key, payload))

	var got Payload
	found, err := c.Get(key, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload.Units, got.Units)
	assert.Equal(t, []string{src}, got.FilePaths)
	assert.True(t, got.Fresh())

	tmp, err := filepath.Glob(filepath.Join(c.Dir(), "units", "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, tmp, "temp files must not be left behind")
}

func TestDiskCache_Miss(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)

	var got Payload
	found, err := c.Get(Key("nothing"), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDiskCache_Corrupt(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)

	key := Key("corrupt")
	p := c.pathFor(key)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte{0xC1}, 0o644))

	var got Payload
	_, err = c.Get(key, &got)
	assert.Error(t, err)

	require.NoError(t, c.Delete(key))
	found, err := c.Get(key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPayload_FreshDetectsChange(t *testing.T) {
	src := writeFile(t, t.TempDir(), "a.proto", "v1")

	var p Payload
	require.NoError(t, p.Record([]string{src}))
	p.Schema = schemaVersion
	assert.True(t, p.Fresh())

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o644))
	assert.False(t, p.Fresh())

	require.NoError(t, os.Remove(src))
	assert.False(t, p.Fresh())
}

func TestPayload_RecordMissingFile(t *testing.T) {
	var p Payload
	assert.Error(t, p.Record([]string{filepath.Join(t.TempDir(), "gone.proto")}))
}

func TestDiskCache_DropAll(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)

	key := Key("k")
	require.NoError(t, c.Put(key, &Payload{Name: "k", Set: []byte{1, 2, 3}}))
	require.NoError(t, c.DropAll())

	var got Payload
	found, err := c.Get(key, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(key, &Payload{Name: "k"}), "cache stays usable after DropAll")
}

func TestOpen_DefaultDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", base)

	c, err := Open("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "protomod"), c.Dir())
}

func TestNilCache(t *testing.T) {
	var c *DiskCache
	assert.NoError(t, c.Put(Key("x"), &Payload{}))
	found, err := c.Get(Key("x"), &Payload{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.DropAll())
}
