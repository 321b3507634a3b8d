package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"evann/internal/config"
	"evann/internal/logging"
	"evann/pkg/evann"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "generate":
		return runGenerate(ctx, args[1:], out)
	case "train-ga":
		return runTrainGenetic(ctx, args[1:], out)
	case "train-bp":
		return runTrainBackprop(ctx, args[1:], out)
	case "handle":
		return runHandle(ctx, args[1:], out)
	case "stat":
		return runStat(ctx, args[1:], out)
	case "runs":
		return runRuns(ctx, args[1:], out)
	case "history":
		return runHistory(ctx, args[1:], out)
	case "export":
		return runExport(ctx, args[1:], out)
	case "backup":
		return runBackup(ctx, args[1:], out)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runGenerate(ctx context.Context, args []string, out io.Writer) error {
	var (
		seed      int64
		overwrite bool
	)
	cfg, err := commandFlags{
		name:   "generate",
		groups: groupNetwork,
		extra: func(fs *flag.FlagSet, cfg *config.TrainingConfig) {
			fs.Int64Var(&seed, "seed", cfg.Genetic.Seed, "random seed for the weights")
			fs.BoolVar(&overwrite, "overwrite", false, "replace an existing memory")
		},
	}.parse(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, logger, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	summary, err := client.Generate(ctx, evann.GenerateRequest{
		Topology:  cfg.Topology(),
		Location:  cfg.Storage.Location,
		Seed:      seed,
		Overwrite: overwrite,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "generated location=%s topology=%q weights=%s\n",
		summary.Location, summary.Topology, humanize.Comma(int64(summary.Weights)))
	return nil
}

func runTrainGenetic(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := commandFlags{name: "train-ga", groups: groupNetwork | groupDataset | groupGenetic}.parse(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Genetic.Generations <= 0 {
		return errors.New("gens must be > 0")
	}

	client, logger, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	summary, err := client.TrainGenetic(ctx, evann.GeneticRequest{
		Topology:             cfg.Topology(),
		Location:             cfg.Storage.Location,
		Dataset:              datasetSource(cfg),
		Activation:           cfg.Network.Activation,
		Population:           cfg.Genetic.PopulationSize,
		Generations:          cfg.Genetic.Generations,
		RandomSeedCount:      cfg.Genetic.RandomSeedCount,
		SelectionChance:      cfg.Genetic.SelectionChance,
		MutationChance:       cfg.Genetic.MutationChance,
		Workers:              cfg.Genetic.Workers,
		Seed:                 cfg.Genetic.Seed,
		GeneSelectionChance:  cfg.Genetic.GeneSelectionChance,
		StagnationWindow:     cfg.Genetic.StagnationWindow,
		RoundDigits:          cfg.Genetic.RoundDigits,
		OverwhelmingMajority: cfg.Genetic.OverwhelmingMajority,
		RemovingPercent:      cfg.Genetic.RemovingPercent,
		Unsafe:               cfg.Genetic.Unsafe,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "run_id=%s generations=%s evaluations=%s cataclysms=%d final_best_fitness=%.6f time_spent=%s\n",
		summary.RunID,
		humanize.Comma(int64(len(summary.MeanByGeneration))),
		humanize.Comma(int64(summary.Evaluations)),
		len(summary.Cataclysms),
		summary.FinalBestFitness,
		formatElapsed(summary.Elapsed),
	)
	fmt.Fprintf(out, "artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runTrainBackprop(ctx context.Context, args []string, out io.Writer) error {
	var printStatistic bool
	cfg, err := commandFlags{
		name:   "train-bp",
		groups: groupNetwork | groupDataset | groupBackprop,
		extra: func(fs *flag.FlagSet, _ *config.TrainingConfig) {
			fs.BoolVar(&printStatistic, "print-statistic", false, "write the learning statistic after training")
		},
	}.parse(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Backprop.Iterations <= 0 {
		return errors.New("iterations must be > 0")
	}

	client, logger, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	summary, err := client.TrainBackprop(ctx, evann.BackpropRequest{
		Topology:        cfg.Topology(),
		Location:        cfg.Storage.Location,
		Dataset:         datasetSource(cfg),
		Activation:      cfg.Network.Activation,
		Iterations:      cfg.Backprop.Iterations,
		LearningRate:    cfg.Backprop.LearningRate,
		CheckpointEvery: cfg.Backprop.CheckpointEvery,
		Tolerance:       cfg.Backprop.Tolerance,
		Unsafe:          cfg.Backprop.Unsafe,
		PrintStatistic:  printStatistic,
	})
	if err != nil {
		return err
	}

	finalError := 0.0
	if n := len(summary.ErrorTrace); n > 0 {
		finalError = summary.ErrorTrace[n-1]
	}
	fmt.Fprintf(out, "run_id=%s iterations=%s skipped_rows=%s final_error=%.6f learned=%.2f%% time_spent=%s\n",
		summary.RunID,
		humanize.Comma(int64(len(summary.ErrorTrace))),
		humanize.Comma(int64(summary.Skipped)),
		finalError,
		summary.Statistic.Percent(),
		formatElapsed(summary.Elapsed),
	)
	if summary.StatisticPath != "" {
		fmt.Fprintf(out, "statistic=%s\n", summary.StatisticPath)
	}
	return nil
}

func runHandle(ctx context.Context, args []string, out io.Writer) error {
	var input []float64
	cfg, err := commandFlags{
		name:   "handle",
		groups: groupNetwork,
		extra: func(fs *flag.FlagSet, _ *config.TrainingConfig) {
			fs.Var(vectorValue{values: &input}, "vector", `input vector e.g. "0 1" or "0,5;1"`)
		},
	}.parse(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(input) == 0 {
		return errors.New("handle requires -vector")
	}

	client, logger, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	output, err := client.Handle(ctx, evann.HandleRequest{
		Topology:   cfg.Topology(),
		Location:   cfg.Storage.Location,
		Activation: cfg.Network.Activation,
		Input:      input,
	})
	if err != nil {
		return err
	}
	parts := make([]string, len(output))
	for i, value := range output {
		parts[i] = fmt.Sprintf("%.6f", value)
	}
	fmt.Fprintln(out, strings.Join(parts, " "))
	return nil
}

func runStat(ctx context.Context, args []string, out io.Writer) error {
	var iteration int
	cfg, err := commandFlags{
		name:   "stat",
		groups: groupNetwork | groupDataset,
		extra: func(fs *flag.FlagSet, cfg *config.TrainingConfig) {
			fs.Float64Var(&cfg.Backprop.Tolerance, "tolerance", cfg.Backprop.Tolerance, "max output distance for a passed row")
			fs.IntVar(&iteration, "iteration", 0, "iteration number naming the statistic file")
		},
	}.parse(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, logger, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	summary, err := client.Statistic(ctx, evann.StatisticRequest{
		Topology:   cfg.Topology(),
		Location:   cfg.Storage.Location,
		Activation: cfg.Network.Activation,
		Dataset:    datasetSource(cfg),
		Tolerance:  cfg.Backprop.Tolerance,
		Iteration:  iteration,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "passed=%s failed=%s learned=%.2f%% file=%s\n",
		humanize.Comma(int64(summary.Passed)),
		humanize.Comma(int64(summary.Failed)),
		summary.Percent,
		summary.Path,
	)
	return nil
}

func runRuns(ctx context.Context, args []string, out io.Writer) error {
	var (
		limit   int
		jsonOut bool
	)
	cfg, err := commandFlags{
		name: "runs",
		extra: func(fs *flag.FlagSet, _ *config.TrainingConfig) {
			fs.IntVar(&limit, "limit", 20, "max runs to list")
			fs.BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
		},
	}.parse(args)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, logger, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	items, err := client.Runs(ctx, evann.RunsRequest{Limit: limit})
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(out, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}
	for _, item := range items {
		created := item.CreatedAtUTC
		if ts, err := time.Parse(time.RFC3339Nano, item.CreatedAtUTC); err == nil {
			created = humanize.Time(ts)
		}
		length := item.Generations
		if item.Trainer == "backprop" {
			length = item.Iterations
		}
		fmt.Fprintf(out, "run_id=%s created=%q trainer=%s location=%s topology=%q length=%s cataclysms=%d final_best_fitness=%.6f\n",
			item.RunID,
			created,
			item.Trainer,
			item.Location,
			item.Topology,
			humanize.Comma(int64(length)),
			item.Cataclysms,
			item.FinalBestFitness,
		)
	}
	return nil
}

func runHistory(ctx context.Context, args []string, out io.Writer) error {
	var (
		runID   string
		latest  bool
		limit   int
		jsonOut bool
	)
	cfg, err := commandFlags{
		name: "history",
		extra: func(fs *flag.FlagSet, _ *config.TrainingConfig) {
			fs.StringVar(&runID, "run-id", "", "run id")
			fs.BoolVar(&latest, "latest", false, "use the newest run")
			fs.IntVar(&limit, "limit", 0, "max generations to print (0 = all)")
			fs.BoolVar(&jsonOut, "json", false, "emit history as JSON")
		},
	}.parse(args)
	if err != nil {
		return err
	}

	client, logger, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	history, err := client.FitnessHistory(ctx, evann.FitnessHistoryRequest{RunID: runID, Latest: latest, Limit: limit})
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(out, history)
	}
	for i, value := range history {
		fmt.Fprintf(out, "generation=%d mean_fitness=%.6f\n", i+1, value)
	}
	return nil
}

func runExport(ctx context.Context, args []string, out io.Writer) error {
	var (
		runID  string
		latest bool
		outDir string
	)
	cfg, err := commandFlags{
		name: "export",
		extra: func(fs *flag.FlagSet, _ *config.TrainingConfig) {
			fs.StringVar(&runID, "run-id", "", "run id")
			fs.BoolVar(&latest, "latest", false, "export the newest run")
			fs.StringVar(&outDir, "out", "exports", "export directory")
		},
	}.parse(args)
	if err != nil {
		return err
	}

	client, logger, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	summary, err := client.Export(ctx, evann.ExportRequest{RunID: runID, Latest: latest, OutDir: outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

func runBackup(ctx context.Context, args []string, out io.Writer) error {
	var backupKind, backupPath string
	cfg, err := commandFlags{
		name:   "backup",
		groups: groupNetwork,
		extra: func(fs *flag.FlagSet, _ *config.TrainingConfig) {
			fs.StringVar(&backupKind, "backup-store", "", "backup store backend (default: file store in .memory_backups)")
			fs.StringVar(&backupPath, "backup-path", "", "backup directory or database path")
		},
	}.parse(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, logger, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	summary, err := client.Backup(ctx, evann.BackupRequest{
		Topology:  cfg.Topology(),
		Location:  cfg.Storage.Location,
		StoreKind: backupKind,
		StorePath: backupPath,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "backup location=%s network_id=%s\n", summary.Location, summary.NetworkID)
	return nil
}

func newClient(cfg config.TrainingConfig) (*evann.Client, *logging.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ErrorLogDir: cfg.Logging.ErrorLogDir,
	})
	if err != nil {
		return nil, nil, err
	}
	client, err := evann.New(evann.Options{
		StoreKind:    cfg.Storage.Kind,
		StorePath:    cfg.Storage.Path,
		ArtifactsDir: cfg.Storage.ArtifactsDir,
		TrainLogDir:  cfg.Logging.TrainLogDir,
		Logger:       logger.Logger,
	})
	if err != nil {
		_ = logger.Close()
		return nil, nil, err
	}
	return client, logger, nil
}

func closeClient(client *evann.Client, logger *logging.Logger) {
	_ = client.Close()
	_ = logger.Close()
}

func datasetSource(cfg config.TrainingConfig) evann.DatasetSource {
	return evann.DatasetSource{
		Input:           cfg.Dataset.Input,
		Output:          cfg.Dataset.Output,
		CSV:             cfg.Dataset.CSV,
		CSVInputColumns: cfg.Dataset.CSVInputColumns,
		CSVHeader:       cfg.Dataset.CSVHeader,
	}
}

// formatElapsed renders d as HH:MM:SS.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: evannctl <generate|train-ga|train-bp|handle|stat|runs|history|export|backup> [flags]", msg)
}
