package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"evann/internal/evo"
)

const (
	runIndexFile    = "run_index.json"
	fitnessTraceCSV = "fitness_trace.csv"
)

type RunConfig struct {
	RunID           string  `json:"run_id"`
	Trainer         string  `json:"trainer"`
	Location        string  `json:"location"`
	Topology        string  `json:"topology"`
	Activation      string  `json:"activation"`
	InputDataset    string  `json:"input_dataset,omitempty"`
	OutputDataset   string  `json:"output_dataset,omitempty"`
	PopulationSize  int     `json:"population_size,omitempty"`
	Generations     int     `json:"generations,omitempty"`
	RandomSeedCount int     `json:"random_seed_count,omitempty"`
	SelectionChance float64 `json:"selection_chance"`
	MutationChance  float64 `json:"mutation_chance"`
	Iterations      int     `json:"iterations,omitempty"`
	LearningRate    float64 `json:"learning_rate,omitempty"`
	Strict          bool    `json:"strict"`
	Seed            int64   `json:"seed"`
	Workers         int     `json:"workers,omitempty"`
}

type RunArtifacts struct {
	Config           RunConfig             `json:"config"`
	MeanByGeneration []float64             `json:"mean_by_generation"`
	BestByGeneration []float64             `json:"best_by_generation"`
	Generations      []evo.GenerationStats `json:"generations,omitempty"`
	Cataclysms       []int                 `json:"cataclysms,omitempty"`
	FinalBestFitness float64               `json:"final_best_fitness"`
	Evaluations      int                   `json:"evaluations"`
}

// TraceSummary condenses a fitness trace.
type TraceSummary struct {
	Initial     float64 `json:"initial"`
	Final       float64 `json:"final"`
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Improvement float64 `json:"improvement"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Trainer          string  `json:"trainer"`
	Location         string  `json:"location"`
	Topology         string  `json:"topology"`
	PopulationSize   int     `json:"population_size,omitempty"`
	Generations      int     `json:"generations,omitempty"`
	Iterations       int     `json:"iterations,omitempty"`
	Seed             int64   `json:"seed"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	Cataclysms       int     `json:"cataclysms"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

// SummarizeTrace reports mean, spread and the drop from first to last value.
// Fitness is an error measure, so a positive improvement means the trace fell.
func SummarizeTrace(trace []float64) (TraceSummary, error) {
	if len(trace) == 0 {
		return TraceSummary{}, fmt.Errorf("trace is empty")
	}
	mean, std := stat.MeanStdDev(trace, nil)
	if len(trace) == 1 {
		std = 0
	}
	return TraceSummary{
		Initial:     trace[0],
		Final:       trace[len(trace)-1],
		Mean:        mean,
		Std:         std,
		Min:         floats.Min(trace),
		Max:         floats.Max(trace),
		Improvement: trace[0] - trace[len(trace)-1],
	}, nil
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	history := map[string]any{
		"mean_by_generation": artifacts.MeanByGeneration,
		"best_by_generation": artifacts.BestByGeneration,
		"final_best_fitness": artifacts.FinalBestFitness,
		"evaluations":        artifacts.Evaluations,
		"cataclysms":         artifacts.Cataclysms,
	}
	if summary, err := SummarizeTrace(artifacts.MeanByGeneration); err == nil {
		history["mean_summary"] = summary
	}
	if err := writeJSON(filepath.Join(runDir, "fitness_history.json"), history); err != nil {
		return "", err
	}
	if len(artifacts.Generations) > 0 {
		if err := writeJSON(filepath.Join(runDir, "generations.json"), artifacts.Generations); err != nil {
			return "", err
		}
	}
	if err := WriteFitnessTrace(runDir, artifacts.MeanByGeneration, artifacts.BestByGeneration); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{"config.json", "fitness_history.json", fitnessTraceCSV} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	generationsPath := filepath.Join(src, "generations.json")
	if _, err := os.Stat(generationsPath); err == nil {
		if err := copyFile(generationsPath, filepath.Join(dst, "generations.json")); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

// WriteFitnessTrace writes one CSV row per generation. best may be shorter
// than mean (backprop runs carry only a mean error trace).
func WriteFitnessTrace(runDir string, mean, best []float64) error {
	file, err := os.Create(filepath.Join(runDir, fitnessTraceCSV))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "mean_fitness", "best_fitness"}); err != nil {
		return err
	}
	for i, value := range mean {
		bestText := ""
		if i < len(best) {
			bestText = strconv.FormatFloat(best[i], 'f', -1, 64)
		}
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(value, 'f', -1, 64),
			bestText,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadFitnessTrace returns the mean column of a run's fitness trace.
func ReadFitnessTrace(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, fitnessTraceCSV)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness trace header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("fitness trace row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

// WriteLearningStatistic writes <dir>/<iteration>.txt with the passed and
// failed row counts and the learned percentage.
func WriteLearningStatistic(dir string, iteration, passed, failed int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	percent := 0.0
	if total := passed + failed; total > 0 {
		percent = float64(passed) * 100 / float64(total)
	}
	content := fmt.Sprintf("Test passed: %d\nTest failed: %d\nPercent learned: %.2f\n", passed, failed, percent)
	path := filepath.Join(dir, strconv.Itoa(iteration)+".txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
