// Package dataset holds labeled training rows and the loaders for the
// plain-text and CSV formats they are kept in.
package dataset

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrDatasetMissing = errors.New("dataset missing")

// Dataset pairs every input row with the output row it should produce.
type Dataset struct {
	Inputs  [][]float64
	Outputs [][]float64
}

func (d Dataset) Len() int {
	return len(d.Inputs)
}

func (d Dataset) Validate() error {
	if len(d.Inputs) == 0 {
		return errors.Wrap(ErrDatasetMissing, "dataset has no rows")
	}
	if len(d.Inputs) != len(d.Outputs) {
		return errors.Errorf("dataset row count mismatch: inputs=%d outputs=%d", len(d.Inputs), len(d.Outputs))
	}
	return nil
}

// LoadText reads an input file and an output file holding one row per line.
// Values are separated by whitespace or ';' and may use a decimal comma.
func LoadText(inputPath, outputPath string) (Dataset, error) {
	inputs, err := readTextRows(inputPath)
	if err != nil {
		return Dataset{}, err
	}
	outputs, err := readTextRows(outputPath)
	if err != nil {
		return Dataset{}, err
	}
	ds := Dataset{Inputs: inputs, Outputs: outputs}
	if err := ds.Validate(); err != nil {
		return Dataset{}, errors.Wrapf(err, "load %s and %s", inputPath, outputPath)
	}
	return ds, nil
}

// LoadCSV reads rows whose first inputColumns fields are inputs and whose
// remaining fields are expected outputs.
func LoadCSV(path string, inputColumns int, hasHeader bool) (Dataset, error) {
	if inputColumns <= 0 {
		return Dataset{}, errors.Errorf("input columns must be > 0, got %d", inputColumns)
	}
	file, err := openDatasetFile(path)
	if err != nil {
		return Dataset{}, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var ds Dataset
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dataset{}, errors.Wrapf(err, "read %s", path)
		}
		line++
		if hasHeader && line == 1 {
			continue
		}
		if len(record) <= inputColumns {
			return Dataset{}, errors.Errorf("%s:%d: want more than %d columns, got %d", path, line, inputColumns, len(record))
		}
		row, err := parseValues(record)
		if err != nil {
			return Dataset{}, errors.Wrapf(err, "%s:%d", path, line)
		}
		ds.Inputs = append(ds.Inputs, row[:inputColumns:inputColumns])
		ds.Outputs = append(ds.Outputs, row[inputColumns:])
	}
	if err := ds.Validate(); err != nil {
		return Dataset{}, errors.Wrapf(err, "load %s", path)
	}
	return ds, nil
}

func readTextRows(path string) ([][]float64, error) {
	file, err := openDatasetFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows [][]float64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.FieldsFunc(scanner.Text(), func(r rune) bool {
			return r == ';' || r == ' ' || r == '\t' || r == '\r'
		})
		if len(fields) == 0 {
			continue
		}
		row, err := parseValues(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, line)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return rows, nil
}

func openDatasetFile(path string) (*os.File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.Wrap(ErrDatasetMissing, "dataset path is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrDatasetMissing, "open %s", path)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return file, nil
}

// ParseValue accepts both decimal separators.
func ParseValue(field string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(field), ",", "."), 64)
}

func parseValues(fields []string) ([]float64, error) {
	row := make([]float64, len(fields))
	for i, field := range fields {
		value, err := ParseValue(field)
		if err != nil {
			return nil, errors.Wrapf(err, "column %d", i+1)
		}
		row[i] = value
	}
	return row, nil
}
