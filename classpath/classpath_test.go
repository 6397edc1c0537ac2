package classpath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func writeJar(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "demo", "Main.class"), []byte{1, 2, 3})

	data, err := Dir(root).Find("demo/Main")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	for _, name := range []string{"demo/Missing", "", "../etc/passwd", "/abs", "[I"} {
		_, err := Dir(root).Find(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory().Add("b/B", []byte("b")).Add("a/A", []byte("a"))
	data, err := m.Find("a/A")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
	assert.Equal(t, []string{"a/A", "b/B"}, m.Names())

	_, err = m.Find("c/C")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.jar")
	writeJar(t, path, map[string][]byte{
		"demo/Util.class":      []byte("util"),
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n"),
	})

	j, err := OpenJar(path)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, 1, j.Len())

	data, err := j.Find("demo/Util")
	require.NoError(t, err)
	assert.Equal(t, []byte("util"), data)

	_, err = j.Find("META-INF/MANIFEST")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPathOrder(t *testing.T) {
	first := NewMemory().Add("x/X", []byte("first"))
	second := NewMemory().Add("x/X", []byte("second")).Add("y/Y", []byte("y"))
	p := Path{first, second}

	data, err := p.Find("x/X")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	data, err = p.Find("y/Y")
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), data)

	_, err = p.Find("z/Z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPathStopsOnHardError(t *testing.T) {
	boom := assert.AnError
	p := Path{
		SourceFunc(func(string) ([]byte, error) { return nil, boom }),
		NewMemory().Add("x/X", []byte("x")),
	}
	_, err := p.Find("x/X")
	assert.ErrorIs(t, err, boom)
}

func TestParse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "classes", "a", "A.class"), []byte("A"))
	jar := filepath.Join(dir, "lib.jar")
	writeJar(t, jar, map[string][]byte{"b/B.class": []byte("B")})

	p, err := Parse(filepath.Join(dir, "classes") + string(os.PathListSeparator) + jar)
	require.NoError(t, err)
	defer p.Close()
	require.Len(t, p, 2)

	data, err := p.Find("b/B")
	require.NoError(t, err)
	assert.Equal(t, []byte("B"), data)

	_, err = Parse(filepath.Join(dir, "nope"))
	assert.Error(t, err)
}
