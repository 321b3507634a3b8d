package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTextAcceptsBothDecimalSeparators(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "0 0\n0;1\n1,0 0\n\n1.0\t1\n")
	out := writeFile(t, dir, "out.txt", "0\n1\n1\n0\n")

	ds, err := LoadText(in, out)
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())
	require.Equal(t, [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}, ds.Inputs)
	require.Equal(t, [][]float64{{0}, {1}, {1}, {0}}, ds.Outputs)
}

func TestLoadTextMissingFile(t *testing.T) {
	dir := t.TempDir()
	out := writeFile(t, dir, "out.txt", "1\n")

	_, err := LoadText(filepath.Join(dir, "absent.txt"), out)
	require.True(t, errors.Is(err, ErrDatasetMissing), "got: %v", err)

	_, err = LoadText("", out)
	require.True(t, errors.Is(err, ErrDatasetMissing), "got: %v", err)
}

func TestLoadTextRowCountMismatch(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "1 2\n3 4\n")
	out := writeFile(t, dir, "out.txt", "1\n")

	_, err := LoadText(in, out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "row count mismatch")
}

func TestLoadTextRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.txt", "1 abc\n")
	out := writeFile(t, dir, "out.txt", "1\n")

	_, err := LoadText(in, out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "in.txt:1")
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "xor.csv", "a,b,y\n0,0,0\n0,1,1\n1,0,1\n1,1,0\n")

	ds, err := LoadCSV(path, 2, true)
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())
	require.Equal(t, []float64{0, 1}, ds.Inputs[1])
	require.Equal(t, []float64{1}, ds.Outputs[1])

	ds.Inputs[0] = append(ds.Inputs[0], 9)
	require.Equal(t, []float64{0}, ds.Outputs[0], "input rows must not share capacity with outputs")
}

func TestLoadCSVRejectsShortRows(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "short.csv", "0,0\n")

	_, err := LoadCSV(path, 2, false)
	require.Error(t, err)

	_, err = LoadCSV(path, 0, false)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.True(t, errors.Is(Dataset{}.Validate(), ErrDatasetMissing))
	require.Error(t, Dataset{Inputs: [][]float64{{1}}}.Validate())
	require.NoError(t, Dataset{Inputs: [][]float64{{1}}, Outputs: [][]float64{{0}}}.Validate())
}
