package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTemplateCmd_CSVToStdout(t *testing.T) {
	out, err := run(t, "template", "--format", "csv")
	require.NoError(t, err)

	header := strings.SplitN(out, "\n", 2)[0]
	assert.True(t, strings.HasPrefix(header, "name,"))
	assert.Contains(t, header, "sellingPrice")
}

func TestTemplateCmd_XLSXNeedsOut(t *testing.T) {
	_, err := run(t, "template", "--format", "xlsx")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "template.xlsx")
	_, err = run(t, "template", "--format", "xlsx", "--out", path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestValidateCmd(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.csv")
	require.NoError(t, os.WriteFile(good, []byte("name,category,quantity,costPrice,sellingPrice\nParacetamol,otc,10,1.5,3\n"), 0o600))
	out, err := run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "rows: 1  valid: 1  skipped: 0")

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("name,category,quantity,costPrice,sellingPrice\n,otc,-1,1.5,3\n"), 0o600))
	out, err = run(t, "validate", bad)
	assert.Error(t, err)
	assert.Contains(t, out, "row 2")
	assert.Contains(t, out, "Name is required")
}

func TestValidateCmd_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := run(t, "validate", path)
	assert.ErrorContains(t, err, "only CSV and XLSX")
}

func TestImportCmd_RequiresPharmacy(t *testing.T) {
	_, err := run(t, "import", "stock.csv")
	assert.ErrorContains(t, err, "pharmacy")
}
