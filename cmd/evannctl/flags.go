package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"evann/internal/config"
	"evann/internal/dataset"
)

// topologyValue reads "input width width ..." into the [network] section.
type topologyValue struct {
	network *config.NetworkConfig
}

func (v topologyValue) String() string {
	if v.network == nil || v.network.InputLength == 0 {
		return ""
	}
	parts := make([]string, 0, len(v.network.Layers)+1)
	parts = append(parts, strconv.Itoa(v.network.InputLength))
	for _, width := range v.network.Layers {
		parts = append(parts, strconv.Itoa(width))
	}
	return strings.Join(parts, " ")
}

func (v topologyValue) Set(raw string) error {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) < 2 {
		return fmt.Errorf("topology needs an input length and at least one layer width")
	}
	widths := make([]int, len(fields))
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return fmt.Errorf("topology value %q: %w", field, err)
		}
		widths[i] = n
	}
	v.network.InputLength = widths[0]
	v.network.Layers = widths[1:]
	return nil
}

// vectorValue reads one input vector; both decimal separators are accepted.
type vectorValue struct {
	values *[]float64
}

func (v vectorValue) String() string {
	if v.values == nil {
		return ""
	}
	parts := make([]string, len(*v.values))
	for i, value := range *v.values {
		parts[i] = strconv.FormatFloat(value, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func (v vectorValue) Set(raw string) error {
	fields := strings.Fields(strings.ReplaceAll(raw, ";", " "))
	out := make([]float64, len(fields))
	for i, field := range fields {
		value, err := dataset.ParseValue(field)
		if err != nil {
			return err
		}
		out[i] = value
	}
	*v.values = out
	return nil
}

type flagGroup int

const (
	groupNetwork flagGroup = 1 << iota
	groupDataset
	groupGenetic
	groupBackprop
)

// commandFlags binds a FlagSet to a TrainingConfig. Flags are parsed twice
// when -config is given: once to find the file, then again on top of the
// loaded file so explicit flags win.
type commandFlags struct {
	name   string
	groups flagGroup
	extra  func(fs *flag.FlagSet, cfg *config.TrainingConfig)
}

func (c commandFlags) parse(args []string) (config.TrainingConfig, error) {
	cfg := config.Default()
	configPath, err := c.parseInto(args, &cfg)
	if err != nil {
		return config.TrainingConfig{}, err
	}
	if configPath == "" {
		return cfg, nil
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		return config.TrainingConfig{}, err
	}
	if _, err := c.parseInto(args, &loaded); err != nil {
		return config.TrainingConfig{}, err
	}
	return loaded, nil
}

func (c commandFlags) parseInto(args []string, cfg *config.TrainingConfig) (string, error) {
	fs := flag.NewFlagSet(c.name, flag.ContinueOnError)
	configPath := fs.String("config", "", "INI training configuration")
	fs.StringVar(&cfg.Storage.Kind, "store", cfg.Storage.Kind, "store backend: file|memory|sqlite")
	fs.StringVar(&cfg.Storage.Path, "store-path", cfg.Storage.Path, "memory directory (file) or database path (sqlite)")
	fs.StringVar(&cfg.Storage.ArtifactsDir, "artifacts-dir", cfg.Storage.ArtifactsDir, "run artifacts directory")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level: debug|info|warn|error")
	fs.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "log format: text|json|auto")
	fs.StringVar(&cfg.Logging.ErrorLogDir, "error-log-dir", cfg.Logging.ErrorLogDir, "directory receiving errors.log")
	fs.StringVar(&cfg.Logging.TrainLogDir, "train-log-dir", cfg.Logging.TrainLogDir, "directory receiving learning statistic files")

	if c.groups&groupNetwork != 0 {
		fs.Var(topologyValue{network: &cfg.Network}, "topology", `network shape "input width ..." e.g. "2 2 1"`)
		fs.StringVar(&cfg.Network.Activation, "activation", cfg.Network.Activation, "activation: sigmoid|tanh|softplus")
		fs.StringVar(&cfg.Storage.Location, "location", cfg.Storage.Location, "memory location inside the store")
	}
	if c.groups&groupDataset != 0 {
		fs.StringVar(&cfg.Dataset.Input, "input", cfg.Dataset.Input, "input dataset file")
		fs.StringVar(&cfg.Dataset.Output, "output", cfg.Dataset.Output, "output dataset file")
		fs.StringVar(&cfg.Dataset.CSV, "csv", cfg.Dataset.CSV, "CSV dataset (inputs then outputs per row)")
		fs.IntVar(&cfg.Dataset.CSVInputColumns, "csv-input-columns", cfg.Dataset.CSVInputColumns, "number of input columns in the CSV dataset")
		fs.BoolVar(&cfg.Dataset.CSVHeader, "csv-header", cfg.Dataset.CSVHeader, "CSV dataset has a header row")
	}
	if c.groups&groupGenetic != 0 {
		fs.IntVar(&cfg.Genetic.PopulationSize, "pop", cfg.Genetic.PopulationSize, "population size")
		fs.IntVar(&cfg.Genetic.Generations, "gens", cfg.Genetic.Generations, "generation count")
		fs.IntVar(&cfg.Genetic.RandomSeedCount, "random-seeds", cfg.Genetic.RandomSeedCount, "random chromosomes in the initial population")
		fs.Float64Var(&cfg.Genetic.SelectionChance, "selection-chance", cfg.Genetic.SelectionChance, "chance an individual breeds")
		fs.Float64Var(&cfg.Genetic.GeneSelectionChance, "gene-chance", cfg.Genetic.GeneSelectionChance, "chance a gene comes from the first parent")
		fs.Float64Var(&cfg.Genetic.MutationChance, "mutation-chance", cfg.Genetic.MutationChance, "chance an individual is mutated")
		fs.IntVar(&cfg.Genetic.StagnationWindow, "stagnation-window", cfg.Genetic.StagnationWindow, "generations watched for degeneration")
		fs.Float64Var(&cfg.Genetic.RemovingPercent, "removing-percent", cfg.Genetic.RemovingPercent, "population share replaced by a cataclysm")
		fs.IntVar(&cfg.Genetic.Workers, "workers", cfg.Genetic.Workers, "evaluation workers (0 = GOMAXPROCS)")
		fs.Int64Var(&cfg.Genetic.Seed, "seed", cfg.Genetic.Seed, "random seed")
		fs.BoolVar(&cfg.Genetic.Unsafe, "unsafe", cfg.Genetic.Unsafe, "skip dataset rows that do not fit the network")
	}
	if c.groups&groupBackprop != 0 {
		fs.IntVar(&cfg.Backprop.Iterations, "iterations", cfg.Backprop.Iterations, "training iterations")
		fs.Float64Var(&cfg.Backprop.LearningRate, "learning-rate", cfg.Backprop.LearningRate, "learning rate")
		fs.IntVar(&cfg.Backprop.CheckpointEvery, "checkpoint-every", cfg.Backprop.CheckpointEvery, "iterations between memory checkpoints")
		fs.Float64Var(&cfg.Backprop.Tolerance, "tolerance", cfg.Backprop.Tolerance, "max output distance for a passed row")
		fs.BoolVar(&cfg.Backprop.Unsafe, "unsafe", cfg.Backprop.Unsafe, "skip dataset rows that do not fit the network")
	}
	if c.extra != nil {
		c.extra(fs, cfg)
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() > 0 {
		return "", usageError(fmt.Sprintf("unexpected arguments for %s: %v", c.name, fs.Args()))
	}
	return *configPath, nil
}
