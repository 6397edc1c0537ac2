package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/blaze/bytecode"
	"github.com/chazu/blaze/classfile"
	"github.com/chazu/blaze/manifest"
	"github.com/chazu/blaze/snapshot"
	"github.com/chazu/blaze/vm"
)

// writeClass assembles demo/Main into dir/classes and returns the class root.
func writeClass(t *testing.T, dir string, divisor int32) string {
	t.Helper()
	b := classfile.NewBuilder("demo/Main", "java/lang/Object")
	b.SetSourceFile("Main.java")
	m := b.AddMethod(classfile.AccPublic|classfile.AccStatic, "main", "()I")
	m.Asm(2, 0).EmitInt(84).EmitInt(divisor).Emit(bytecode.OpIdiv, bytecode.OpIreturn)
	m.Line(0, 3)
	data, err := b.Bytes()
	require.NoError(t, err)

	root := filepath.Join(dir, "classes")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "demo"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "demo", "Main.class"), data, 0644))
	return root
}

// execute runs the root command with fresh flag values.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	runClasspath, inspectClasspath, disasmClasspath = "", "", ""
	inspectOut, inspectLink, disasmMethod = "", false, ""
	maxFrames, profileTop, verbose, logFile = manifest.DefaultMaxFrames, 0, 0, ""
	project = nil

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunPrintsResult(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	root := writeClass(t, dir, 2)

	out, _, err := execute(t, "run", "demo/Main", "-c", root)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestRunProfile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	root := writeClass(t, dir, 2)

	out, stderr, err := execute(t, "run", "demo/Main", "-c", root, "--profile", "5")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
	assert.Contains(t, stderr, "instructions")
	assert.Contains(t, stderr, "demo/Main.main()I")
}

func TestRunUsesManifest(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeClass(t, dir, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(`
[run]
main = "demo/Main"
`), 0644))

	out, _, err := execute(t, "run")
	require.NoError(t, err)
	assert.Equal(t, "21\n", out)
}

func TestRunReportsUncaughtException(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	root := writeClass(t, dir, 0)

	_, stderr, err := execute(t, "run", "demo/Main", "-c", root)
	require.ErrorIs(t, err, vm.ErrUncaught)
	assert.Contains(t, stderr, "java/lang/ArithmeticException: / by zero")
	assert.Contains(t, stderr, "at demo/Main.main")
}

func TestRunWithoutClass(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, "run")
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	root := writeClass(t, dir, 2)
	file := filepath.Join(root, "demo", "Main.class")

	out, _, err := execute(t, "inspect", file)
	require.NoError(t, err)
	assert.Contains(t, out, "demo/Main (version 52.0")
	assert.Contains(t, out, "method main()I")
	assert.Contains(t, out, "sha256 ")

	out, _, err = execute(t, "inspect", "demo/Main", "-c", root, "--link")
	require.NoError(t, err)
	assert.Contains(t, out, "demo/Main (")
	assert.Contains(t, out, "extends java/lang/Object")
	assert.Contains(t, out, "vtable 0 equals(Ljava/lang/Object;)Z from java/lang/Object")

	snap := filepath.Join(dir, "main.cbor")
	_, _, err = execute(t, "inspect", file, "--out", snap)
	require.NoError(t, err)
	data, err := os.ReadFile(snap)
	require.NoError(t, err)
	s, err := snapshot.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "demo/Main", s.Name)
	assert.Equal(t, "Main.java", s.SourceFile)
}

func TestDisasm(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	root := writeClass(t, dir, 2)

	out, _, err := execute(t, "disasm", "demo/Main", "-c", root)
	require.NoError(t, err)
	assert.Contains(t, out, "demo/Main.main()I")
	assert.Contains(t, out, "idiv")
	assert.Contains(t, out, "ireturn")

	_, _, err = execute(t, "disasm", "demo/Main", "-c", root, "-m", "absent")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version dev")
}
