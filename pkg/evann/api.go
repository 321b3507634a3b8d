package evann

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"evann/internal/backprop"
	"evann/internal/dataset"
	"evann/internal/evo"
	"evann/internal/logging"
	"evann/internal/model"
	"evann/internal/nn"
	"evann/internal/stats"
	"evann/internal/storage"
)

const (
	defaultMemoryDir    = "Memory"
	defaultDBPath       = "evann.db"
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultTrainLogDir  = ".logs/trainLogs"
	defaultBackupDir    = ".memory_backups"
)

var ErrMemoryExists = errors.New("memory already exists")

type Options struct {
	// StoreKind is file, memory or sqlite.
	StoreKind string
	// StorePath is the memory directory for the file store and the database
	// path for sqlite.
	StorePath    string
	ArtifactsDir string
	ExportsDir   string
	TrainLogDir  string
	Logger       *slog.Logger
}

type Client struct {
	store     storage.Store
	storeKind string
	logger    *slog.Logger

	artifactsDir string
	exportsDir   string
	trainLogDir  string

	initMu      sync.Mutex
	initialized bool
}

// DatasetSource names either a pair of text files or one CSV file.
type DatasetSource struct {
	Input           string
	Output          string
	CSV             string
	CSVInputColumns int
	CSVHeader       bool
}

type GenerateRequest struct {
	Topology  model.Topology
	Location  string
	Seed      int64
	Overwrite bool
}

type GenerateSummary struct {
	Location string
	Topology string
	Weights  int
}

type GeneticRequest struct {
	Topology        model.Topology
	Location        string
	Dataset         DatasetSource
	Activation      string
	Population      int
	Generations     int
	RandomSeedCount int
	// Chances of zero disable the step; negative chances take the defaults.
	SelectionChance float64
	MutationChance  float64
	Workers         int
	Seed            int64

	GeneSelectionChance  float64
	StagnationWindow     int
	RoundDigits          int
	OverwhelmingMajority float64
	RemovingPercent      float64

	// Unsafe skips dataset rows that do not fit the network instead of
	// failing the run.
	Unsafe bool
}

type GeneticSummary struct {
	RunID            string
	ArtifactsDir     string
	MeanByGeneration []float64
	BestByGeneration []float64
	Cataclysms       []int
	Evaluations      int
	FinalBestFitness float64
	Elapsed          time.Duration
}

type BackpropRequest struct {
	Topology        model.Topology
	Location        string
	Dataset         DatasetSource
	Activation      string
	Iterations      int
	LearningRate    float64
	CheckpointEvery int
	Tolerance       float64
	Unsafe          bool
	// PrintStatistic writes the learning statistic file after training.
	PrintStatistic bool
}

type BackpropSummary struct {
	RunID         string
	ArtifactsDir  string
	ErrorTrace    []float64
	Skipped       int
	Statistic     backprop.Statistic
	StatisticPath string
	Elapsed       time.Duration
}

type HandleRequest struct {
	Topology   model.Topology
	Location   string
	Activation string
	Input      []float64
}

type StatisticRequest struct {
	Topology   model.Topology
	Location   string
	Activation string
	Dataset    DatasetSource
	Tolerance  float64
	// Iteration names the statistic file. Zero writes 0.txt.
	Iteration int
}

type StatisticSummary struct {
	Passed  int
	Failed  int
	Percent float64
	Path    string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Trainer          string
	Location         string
	Topology         string
	Seed             int64
	Population       int
	Generations      int
	Iterations       int
	Cataclysms       int
	FinalBestFitness float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type BackupRequest struct {
	Topology model.Topology
	Location string
	// StoreKind and StorePath select the backup destination. Empty means a
	// file store under .memory_backups.
	StoreKind string
	StorePath string
}

type BackupSummary struct {
	Location  string
	NetworkID string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	storePath := opts.StorePath
	if storePath == "" {
		storePath = defaultStorePath(storeKind)
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	trainLogDir := opts.TrainLogDir
	if trainLogDir == "" {
		trainLogDir = defaultTrainLogDir
	}

	store, err := storage.NewStore(storeKind, storePath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		storeKind:    storeKind,
		logger:       logging.OrDiscard(opts.Logger),
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
		trainLogDir:  trainLogDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Generate writes a freshly randomized memory to req.Location.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return GenerateSummary{}, err
	}
	if req.Location == "" {
		return GenerateSummary{}, errors.New("location is required")
	}
	if !req.Overwrite {
		_, ok, err := c.store.GetMemory(ctx, req.Location)
		if err != nil && !errors.Is(err, storage.ErrMemoryInitialize) {
			return GenerateSummary{}, err
		}
		if ok {
			return GenerateSummary{}, fmt.Errorf("%w: %s", ErrMemoryExists, req.Location)
		}
	}

	memory, err := storage.GenerateMemory(rand.New(rand.NewSource(req.Seed)), req.Topology)
	if err != nil {
		return GenerateSummary{}, err
	}
	if err := c.store.SaveMemory(ctx, req.Location, memory); err != nil {
		return GenerateSummary{}, err
	}
	c.logger.Info("memory generated", "location", req.Location, "topology", req.Topology.String())
	return GenerateSummary{
		Location: req.Location,
		Topology: req.Topology.String(),
		Weights:  req.Topology.ChromosomeLength(),
	}, nil
}

func (c *Client) TrainGenetic(ctx context.Context, req GeneticRequest) (GeneticSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return GeneticSummary{}, err
	}
	if req.Location == "" {
		return GeneticSummary{}, errors.New("location is required")
	}
	if req.Population <= 0 {
		req.Population = evo.DefaultPopulationSize
	}
	if req.SelectionChance < 0 {
		req.SelectionChance = evo.DefaultSelectionChance
	}
	if req.GeneSelectionChance < 0 {
		req.GeneSelectionChance = evo.DefaultGeneSelectionChance
	}
	if req.MutationChance < 0 {
		req.MutationChance = evo.DefaultMutationChance
	}
	if req.Generations <= 0 {
		req.Generations = 100
	}
	activation, err := nn.ParseActivation(req.Activation)
	if err != nil {
		return GeneticSummary{}, err
	}
	ds, err := loadDataset(req.Dataset)
	if err != nil {
		return GeneticSummary{}, err
	}

	started := time.Now()
	runID := uuid.NewString()
	result, err := evo.Train(ctx, c.store, req.Location, evo.Config{
		Topology:        req.Topology,
		Dataset:         ds,
		Activation:      activation,
		PopulationSize:  req.Population,
		Generations:     req.Generations,
		RandomSeedCount: req.RandomSeedCount,
		SelectionChance: req.SelectionChance,
		MutationChance:  req.MutationChance,
		Workers:         req.Workers,
		Strict:          !req.Unsafe,
		Seed:            req.Seed,
		Logger:          c.logger,
		RunID:           runID,

		GeneSelectionChance:  req.GeneSelectionChance,
		StagnationWindow:     req.StagnationWindow,
		RoundDigits:          req.RoundDigits,
		OverwhelmingMajority: req.OverwhelmingMajority,
		RemovingPercent:      req.RemovingPercent,
	})
	if err != nil {
		return GeneticSummary{}, err
	}
	elapsed := time.Since(started)

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:           runID,
			Trainer:         "genetic",
			Location:        req.Location,
			Topology:        req.Topology.String(),
			Activation:      activation.String(),
			InputDataset:    datasetName(req.Dataset, true),
			OutputDataset:   datasetName(req.Dataset, false),
			PopulationSize:  req.Population,
			Generations:     req.Generations,
			RandomSeedCount: req.RandomSeedCount,
			SelectionChance: req.SelectionChance,
			MutationChance:  req.MutationChance,
			Strict:          !req.Unsafe,
			Seed:            req.Seed,
			Workers:         req.Workers,
		},
		MeanByGeneration: result.MeanByGeneration,
		BestByGeneration: result.BestByGeneration,
		Generations:      result.Generations,
		Cataclysms:       result.Cataclysms,
		FinalBestFitness: result.BestFitness,
		Evaluations:      result.Evaluations,
	})
	if err != nil {
		return GeneticSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:            runID,
		Trainer:          "genetic",
		Location:         req.Location,
		Topology:         req.Topology.String(),
		PopulationSize:   req.Population,
		Generations:      req.Generations,
		Seed:             req.Seed,
		FinalBestFitness: result.BestFitness,
		Cataclysms:       len(result.Cataclysms),
		CreatedAtUTC:     time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return GeneticSummary{}, err
	}

	return GeneticSummary{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		MeanByGeneration: append([]float64(nil), result.MeanByGeneration...),
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		Cataclysms:       append([]int(nil), result.Cataclysms...),
		Evaluations:      result.Evaluations,
		FinalBestFitness: result.BestFitness,
		Elapsed:          elapsed,
	}, nil
}

func (c *Client) TrainBackprop(ctx context.Context, req BackpropRequest) (BackpropSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return BackpropSummary{}, err
	}
	if req.Location == "" {
		return BackpropSummary{}, errors.New("location is required")
	}
	if req.Iterations <= 0 {
		req.Iterations = 100
	}
	activation, err := nn.ParseActivation(req.Activation)
	if err != nil {
		return BackpropSummary{}, err
	}
	ds, err := loadDataset(req.Dataset)
	if err != nil {
		return BackpropSummary{}, err
	}

	started := time.Now()
	runID := uuid.NewString()
	cfg := backprop.Config{
		Iterations:      req.Iterations,
		LearningRate:    req.LearningRate,
		CheckpointEvery: req.CheckpointEvery,
		Strict:          !req.Unsafe,
		Tolerance:       req.Tolerance,
		Activation:      activation,
		Logger:          c.logger.With("run_id", runID),
	}
	result, err := backprop.Train(ctx, c.store, req.Location, req.Topology, ds, cfg)
	if err != nil {
		return BackpropSummary{}, err
	}
	elapsed := time.Since(started)

	if err := c.store.SaveFitnessHistory(ctx, runID, result.ErrorTrace); err != nil {
		return BackpropSummary{}, fmt.Errorf("save error trace: %w", err)
	}
	finalError := 0.0
	if n := len(result.ErrorTrace); n > 0 {
		finalError = result.ErrorTrace[n-1]
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:         runID,
			Trainer:       "backprop",
			Location:      req.Location,
			Topology:      req.Topology.String(),
			Activation:    activation.String(),
			InputDataset:  datasetName(req.Dataset, true),
			OutputDataset: datasetName(req.Dataset, false),
			Iterations:    req.Iterations,
			LearningRate:  req.LearningRate,
			Strict:        !req.Unsafe,
		},
		MeanByGeneration: result.ErrorTrace,
		FinalBestFitness: finalError,
	})
	if err != nil {
		return BackpropSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:            runID,
		Trainer:          "backprop",
		Location:         req.Location,
		Topology:         req.Topology.String(),
		Iterations:       req.Iterations,
		FinalBestFitness: finalError,
		CreatedAtUTC:     time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return BackpropSummary{}, err
	}

	summary := BackpropSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		ErrorTrace:   append([]float64(nil), result.ErrorTrace...),
		Skipped:      result.Skipped,
		Statistic:    result.Statistic,
		Elapsed:      elapsed,
	}
	if req.PrintStatistic {
		path, err := stats.WriteLearningStatistic(c.trainLogDir, result.Iterations, result.Statistic.Passed, result.Statistic.Failed)
		if err != nil {
			return BackpropSummary{}, err
		}
		summary.StatisticPath = path
	}
	return summary, nil
}

// Handle runs one input vector through the network stored at req.Location.
func (c *Client) Handle(ctx context.Context, req HandleRequest) ([]float64, error) {
	perceptron, err := c.loadPerceptron(ctx, req.Topology, req.Location, req.Activation)
	if err != nil {
		return nil, err
	}
	return perceptron.Handle(req.Input)
}

// Statistic measures the stored network against a dataset and writes the
// learning statistic file.
func (c *Client) Statistic(ctx context.Context, req StatisticRequest) (StatisticSummary, error) {
	perceptron, err := c.loadPerceptron(ctx, req.Topology, req.Location, req.Activation)
	if err != nil {
		return StatisticSummary{}, err
	}
	ds, err := loadDataset(req.Dataset)
	if err != nil {
		return StatisticSummary{}, err
	}
	if req.Tolerance <= 0 {
		req.Tolerance = backprop.DefaultTolerance
	}
	stat := backprop.Measure(perceptron, ds, req.Tolerance)
	path, err := stats.WriteLearningStatistic(c.trainLogDir, req.Iteration, stat.Passed, stat.Failed)
	if err != nil {
		return StatisticSummary{}, err
	}
	return StatisticSummary{
		Passed:  stat.Passed,
		Failed:  stat.Failed,
		Percent: stat.Percent(),
		Path:    path,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Trainer:          e.Trainer,
			Location:         e.Location,
			Topology:         e.Topology,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			Iterations:       e.Iterations,
			Cataclysms:       e.Cataclysms,
			FinalBestFitness: e.FinalBestFitness,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// FitnessHistory returns the mean fitness (or mean error) trace of a run. The
// store is consulted first; runs made against a memory store fall back to the
// CSV trace in the artifacts directory.
func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, errors.New("fitness history requires run id or latest")
	}

	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessTrace(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
		}
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

// Backup copies the memory at req.Location into another store under a
// timestamped location.
func (c *Client) Backup(ctx context.Context, req BackupRequest) (BackupSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return BackupSummary{}, err
	}
	memory, err := storage.LoadMemory(ctx, c.store, req.Location, req.Topology)
	if err != nil {
		return BackupSummary{}, err
	}

	kind := req.StoreKind
	path := req.StorePath
	if kind == "" {
		kind = "file"
		if path == "" {
			path = defaultBackupDir
		}
	}
	if path == "" {
		path = defaultStorePath(kind)
	}
	target, err := storage.NewStore(kind, path)
	if err != nil {
		return BackupSummary{}, err
	}
	defer storage.CloseIfSupported(target)
	if err := target.Init(ctx); err != nil {
		return BackupSummary{}, err
	}

	location := time.Now().UTC().Format("20060102T150405") + "_" + filepath.Base(req.Location)
	if memory.NetworkID == "" {
		memory.NetworkID = uuid.NewString()
	}
	if err := target.SaveMemory(ctx, location, memory); err != nil {
		return BackupSummary{}, err
	}
	c.logger.Info("memory backed up", "location", req.Location, "backup", location, "store", kind)
	return BackupSummary{Location: location, NetworkID: memory.NetworkID}, nil
}

func (c *Client) loadPerceptron(ctx context.Context, topology model.Topology, location, activationName string) (*nn.Perceptron, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	activation, err := nn.ParseActivation(activationName)
	if err != nil {
		return nil, err
	}
	memory, err := storage.LoadMemory(ctx, c.store, location, topology)
	if err != nil {
		return nil, err
	}
	return nn.NewPerceptron(memory, activation)
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if !latest {
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	c.logger.Debug("store initialized", "kind", c.storeKind)
	return nil
}

func loadDataset(src DatasetSource) (dataset.Dataset, error) {
	if src.CSV != "" {
		return dataset.LoadCSV(src.CSV, src.CSVInputColumns, src.CSVHeader)
	}
	if src.Input == "" || src.Output == "" {
		return dataset.Dataset{}, fmt.Errorf("%w: input and output dataset paths are required", dataset.ErrDatasetMissing)
	}
	return dataset.LoadText(src.Input, src.Output)
}

func datasetName(src DatasetSource, input bool) string {
	if src.CSV != "" {
		return src.CSV
	}
	if input {
		return src.Input
	}
	return src.Output
}

func defaultStorePath(kind string) string {
	if kind == "sqlite" {
		return defaultDBPath
	}
	return defaultMemoryDir
}
