package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/maruel/kvedit/internal/errors"
)

const fixture = `
databases:
  - name: app-db
    version: 1
    stores:
      - name: items
        records:
          - key: a
            value: {x: 1}
          - key: b
            value: {x: 2}
      - name: users
        key_path: id
        records:
          - value: {id: u1, name: Ann}
`

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	seedFile := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(fixture), 0o600))
	c := &cli{t: t, base: []string{"--backend=file", "--data-dir=" + filepath.Join(dir, "data")}}
	_, _, err := c.run("databases", "--seed="+seedFile)
	require.NoError(t, err)
	return c
}

func (c *cli) run(args ...string) (string, string, error) {
	c.t.Helper()
	cmd := newRootCmd(&slog.LevelVar{})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append(append([]string{}, c.base...), args...))
	err := cmd.ExecuteContext(c.t.Context())
	return out.String(), errOut.String(), err
}

func TestCLI_Browse(t *testing.T) {
	c := newCLI(t)
	out, _, err := c.run("databases")
	require.NoError(t, err)
	assert.Contains(t, out, "app-db")

	out, _, err = c.run("stores", "app-db")
	require.NoError(t, err)
	assert.Contains(t, out, "(out-of-line)")
	assert.Contains(t, out, "id")

	out, errOut, err := c.run("scan", "app-db", "items")
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 records")
	assert.Contains(t, out, `{"x":1}`)
	assert.Contains(t, errOut, "Loaded 2 records from items")

	out, _, err = c.run("scan", "app-db", "items", "--filter", "A")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 2 records")
}

func TestCLI_NoEnumeration(t *testing.T) {
	c := newCLI(t)
	t.Setenv("KVEDIT_ENUMERATE", "false")
	_, _, err := c.run("databases")
	require.Error(t, err)
	assert.True(t, apierrors.HasCode(err, apierrors.ErrUnsupported))

	// Named databases still open.
	out, _, err := c.run("scan", "app-db", "items")
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 records")
}

func TestCLI_PutDelete(t *testing.T) {
	c := newCLI(t)
	_, _, err := c.run("put", "app-db", "items", `{"x":3}`)
	assert.True(t, apierrors.HasCode(err, apierrors.ErrPutFailed))

	_, _, err = c.run("put", "app-db", "items", "--key", "c", `{"x":3}`)
	require.NoError(t, err)
	_, _, err = c.run("put", "app-db", "users", `{"id":"u2"}`)
	require.NoError(t, err)

	_, _, err = c.run("delete", "app-db", "items", "a")
	assert.True(t, apierrors.HasCode(err, apierrors.ErrNotConfirmed))
	_, errOut, err := c.run("delete", "app-db", "items", "a", "--yes")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Record deleted successfully")

	out, _, err := c.run("scan", "app-db", "items")
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 records")
	assert.Contains(t, out, `{"x":3}`)
	assert.NotContains(t, out, `{"x":1}`)

	out, _, err = c.run("scan", "app-db", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 records")
}

func TestCLI_ExportImport(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()
	out, _, err := c.run("export", "app-db", "items", "b", "-o", dir)
	require.NoError(t, err)
	p := filepath.Join(dir, "record_b.json")
	assert.Equal(t, p+"\n", out)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"x\": 2\n}", string(data))

	require.NoError(t, os.WriteFile(p, []byte(`{"x": 20}`), 0o600))
	_, _, err = c.run("import", "app-db", "items", p, "--key", "b")
	require.NoError(t, err)
	out, _, err = c.run("scan", "app-db", "items", "--filter", "b")
	require.NoError(t, err)
	assert.Contains(t, out, `{"x":20}`)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"x":1,}`), 0o600))
	_, _, err = c.run("import", "app-db", "items", bad, "--key", "b")
	assert.True(t, apierrors.HasCode(err, apierrors.ErrInvalidFormat))
}

func TestCLI_AutoNav(t *testing.T) {
	c := newCLI(t)
	out, _, err := c.run("autonav", "https://example.com/")
	require.NoError(t, err)
	assert.Contains(t, out, `"visible": true`)
}

func TestCLI_Config(t *testing.T) {
	out, _, err := (&cli{t: t}).run("config", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"url_pattern"`)

	out, _, err = (&cli{t: t}).run("config", "check")
	require.NoError(t, err)
	assert.Equal(t, "(defaults): ok (backend memory)\n", out)

	_, _, err = (&cli{t: t}).run("--backend=redis", "databases")
	assert.ErrorContains(t, err, "invalid config")
}
