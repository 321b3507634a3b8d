// Package config loads training settings from INI files.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"evann/internal/backprop"
	"evann/internal/evo"
	"evann/internal/model"
)

// TrainingConfig mirrors the INI layout: one struct per section.
type TrainingConfig struct {
	Network  NetworkConfig
	Dataset  DatasetConfig
	Genetic  GeneticConfig
	Backprop BackpropConfig
	Storage  StorageConfig
	Logging  LoggingConfig
}

type NetworkConfig struct {
	InputLength int    `ini:"input_length"`
	Layers      []int  `ini:"layers" delim:" "`
	Activation  string `ini:"activation"`
}

type DatasetConfig struct {
	Input           string `ini:"input"`
	Output          string `ini:"output"`
	CSV             string `ini:"csv"`
	CSVInputColumns int    `ini:"csv_input_columns"`
	CSVHeader       bool   `ini:"csv_header"`
}

type GeneticConfig struct {
	PopulationSize       int     `ini:"population_size"`
	Generations          int     `ini:"generations"`
	RandomSeedCount      int     `ini:"random_seed_count"`
	SelectionChance      float64 `ini:"selection_chance"`
	GeneSelectionChance  float64 `ini:"gene_selection_chance"`
	MutationChance       float64 `ini:"mutation_chance"`
	StagnationWindow     int     `ini:"stagnation_window"`
	RoundDigits          int     `ini:"round_digits"`
	OverwhelmingMajority float64 `ini:"overwhelming_majority"`
	RemovingPercent      float64 `ini:"removing_percent"`
	Workers              int     `ini:"workers"`
	Seed                 int64   `ini:"seed"`
	// Unsafe skips dataset rows that do not fit the network.
	Unsafe bool `ini:"unsafe"`
}

type BackpropConfig struct {
	Iterations      int     `ini:"iterations"`
	LearningRate    float64 `ini:"learning_rate"`
	CheckpointEvery int     `ini:"checkpoint_every"`
	Tolerance       float64 `ini:"tolerance"`
	Unsafe          bool    `ini:"unsafe"`
}

type StorageConfig struct {
	Kind string `ini:"kind"`
	// Path empty means Memory/ for the file store and evann.db for sqlite.
	Path         string `ini:"path"`
	Location     string `ini:"location"`
	ArtifactsDir string `ini:"artifacts_dir"`
}

type LoggingConfig struct {
	Level       string `ini:"level"`
	Format      string `ini:"format"`
	ErrorLogDir string `ini:"error_log_dir"`
	TrainLogDir string `ini:"train_log_dir"`
}

// Default returns the settings used when no file overrides them.
func Default() TrainingConfig {
	return TrainingConfig{
		Network: NetworkConfig{Activation: "sigmoid"},
		Genetic: GeneticConfig{
			PopulationSize:       evo.DefaultPopulationSize,
			Generations:          1000,
			RandomSeedCount:      evo.DefaultRandomSeedCount,
			SelectionChance:      evo.DefaultSelectionChance,
			GeneSelectionChance:  evo.DefaultGeneSelectionChance,
			MutationChance:       evo.DefaultMutationChance,
			StagnationWindow:     evo.DefaultStagnationWindow,
			RoundDigits:          evo.DefaultRoundDigits,
			OverwhelmingMajority: evo.DefaultOverwhelmingMajority,
			RemovingPercent:      evo.DefaultRemovingPercent,
			Seed:                 1,
		},
		Backprop: BackpropConfig{
			Iterations:      1000,
			LearningRate:    backprop.DefaultLearningRate,
			CheckpointEvery: backprop.DefaultCheckpointEvery,
			Tolerance:       backprop.DefaultTolerance,
		},
		Storage: StorageConfig{
			Kind:         "file",
			Location:     "memory.txt",
			ArtifactsDir: "runs",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			ErrorLogDir: ".logs/errorLogs",
			TrainLogDir: ".logs/trainLogs",
		},
	}
}

// Load reads an INI file on top of Default. Missing sections and keys keep
// their defaults.
func Load(path string) (TrainingConfig, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, path)
	if err != nil {
		return TrainingConfig{}, fmt.Errorf("failed to load config file '%s': %w", path, err)
	}
	return fromFile(file)
}

// Parse is Load for in-memory INI content.
func Parse(data []byte) (TrainingConfig, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, data)
	if err != nil {
		return TrainingConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return fromFile(file)
}

func fromFile(file *ini.File) (TrainingConfig, error) {
	cfg := Default()
	sections := []struct {
		name   string
		target any
	}{
		{"network", &cfg.Network},
		{"dataset", &cfg.Dataset},
		{"genetic", &cfg.Genetic},
		{"backprop", &cfg.Backprop},
		{"storage", &cfg.Storage},
		{"logging", &cfg.Logging},
	}
	for _, section := range sections {
		if !file.HasSection(section.name) {
			continue
		}
		if err := file.Section(section.name).StrictMapTo(section.target); err != nil {
			return TrainingConfig{}, fmt.Errorf("failed to map [%s] section: %w", section.name, err)
		}
	}

	cfg.Network.Activation = strings.ToLower(strings.TrimSpace(cfg.Network.Activation))
	cfg.Storage.Kind = strings.ToLower(strings.TrimSpace(cfg.Storage.Kind))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	return cfg, nil
}

func (c TrainingConfig) Topology() model.Topology {
	return model.Topology{InputLength: c.Network.InputLength, Layers: append([]int(nil), c.Network.Layers...)}
}

// Validate checks the settings every command needs.
func (c TrainingConfig) Validate() error {
	if err := c.Topology().Validate(); err != nil {
		return fmt.Errorf("[network]: %w", err)
	}
	if c.Storage.Location == "" {
		return fmt.Errorf("[storage] location is required")
	}
	if c.Genetic.PopulationSize < 2 {
		return fmt.Errorf("[genetic] population_size must be >= 2")
	}
	return nil
}
