package compile

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

func TestCompiledName(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "custom.js"), CompiledName(filepath.Join("out", "custom.src.js")))
	assert.Equal(t, filepath.Join("out", "highcharts.min.js"), CompiledName(filepath.Join("out", "highcharts.js")))
}

func writeSource(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "custom.src.js")
	require.NoError(t, os.WriteFile(src, []byte("var  a = 1 ;\n"), 0o600))
	return src
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandCompiler_Success(t *testing.T) {
	requireShell(t)
	src := writeSource(t)
	c := NewCommandCompiler("sh", []string{"-c", `tr -s ' ' < "$0" > "$1"`, InputPlaceholder, OutputPlaceholder}, time.Second)

	dst, err := c.Compile(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(src), "custom.js"), dst)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "var a = 1 ;\n", string(data))
	assert.FileExists(t, src, "the uncompiled artifact stays available")
}

func TestCommandCompiler_FailureLeavesNoCompiledFile(t *testing.T) {
	requireShell(t)
	src := writeSource(t)
	c := NewCommandCompiler("sh", []string{"-c", `echo partial > "$1"; echo 'parse error' >&2; exit 1`}, time.Second)

	_, err := c.Compile(context.Background(), src)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryCompileFailed))
	entries, err := os.ReadDir(filepath.Dir(src))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "custom.src.js", entries[0].Name())
}

func TestCommandCompiler_EmptyOutputIsFailure(t *testing.T) {
	requireShell(t)
	src := writeSource(t)
	c := NewCommandCompiler("sh", []string{"-c", `: > "$1"`}, time.Second)

	_, err := c.Compile(context.Background(), src)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryCompileFailed))
	assert.NoFileExists(t, CompiledName(src))
}

func TestExpandArgs(t *testing.T) {
	c := NewCommandCompiler("closure", []string{"--js={input}", "--js_output_file={output}"}, 0)
	assert.Equal(t, []string{"--js=a", "--js_output_file=b"}, c.expandArgs("a", "b"))

	plain := NewCommandCompiler("terser", []string{"--compress"}, 0)
	assert.Equal(t, []string{"--compress", "a", "b"}, plain.expandArgs("a", "b"))
}
