// Package delta resolves Delta Lake tables into lazy dataframes. It reads
// the transaction log under _delta_log, replays it up to the requested
// version and exposes the live data files as frame partitions.
package delta

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"time"

	"go.uber.org/zap"

	"deltaframe/internal/dataframe"
	"deltaframe/internal/metrics"
	"deltaframe/internal/parquetio"
	"deltaframe/internal/predicate"
	"deltaframe/internal/storage"
)

// Options selects the table version and shapes the returned frame
type Options struct {
	// Version pins the table version. Nil means the latest reachable one.
	Version *int64
	// Checkpoint forces replay to start at this checkpoint.
	Checkpoint *int64
	// Timestamp selects the newest version committed at or before it.
	// It cannot be combined with Version.
	Timestamp *time.Time
	// Filter prunes files by partition values and rows at compute time.
	Filter predicate.Predicate
	// Columns projects the output. Empty means every schema column.
	Columns []string
}

// ResolvedFileSet is the outcome of resolving a table version
type ResolvedFileSet struct {
	Location         string            `json:"location"`
	Version          int64             `json:"version"`
	Checkpoint       int64             `json:"checkpoint"`
	Schema           Schema            `json:"schema"`
	PartitionColumns []string          `json:"partitionColumns"`
	Columns          []string          `json:"columns"`
	Files            []DataFile        `json:"files"`
	Configuration    map[string]string `json:"configuration,omitempty"`
}

// Resolver turns table locations into lazy frames. It holds no per-table
// state unless a SnapshotCache is supplied.
type Resolver struct {
	registry    *storage.Registry
	reader      *parquetio.Reader
	cache       *SnapshotCache
	logger      *zap.Logger
	metrics     *metrics.ReaderMetrics
	concurrency int
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithCache enables snapshot caching for pinned versions
func WithCache(cache *SnapshotCache) ResolverOption {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records resolution and partition read metrics
func WithMetrics(m *metrics.ReaderMetrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithConcurrency bounds parallel partition reads of returned frames
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithBatchSize sets the number of rows decoded per batch
func WithBatchSize(n int) ResolverOption {
	return func(r *Resolver) {
		r.reader = parquetio.NewReader(n)
	}
}

// NewResolver creates a resolver reading through registry
func NewResolver(registry *storage.Registry, opts ...ResolverOption) *Resolver {
	if registry == nil {
		registry = storage.NewRegistry()
	}
	r := &Resolver{
		registry:    registry,
		reader:      parquetio.NewReader(0),
		logger:      zap.NewNop(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolution is a pruned file set plus what is needed to read it
type resolution struct {
	set    *ResolvedFileSet
	store  storage.ObjectStore
	values []map[string]interface{}
}

// Resolve returns a lazy frame over the requested table version. Errors
// in the log surface here; data file errors surface at compute time.
func (r *Resolver) Resolve(ctx context.Context, location string, opts Options) (*dataframe.Frame, error) {
	frame, _, err := r.ResolveWithFiles(ctx, location, opts)
	return frame, err
}

// ResolveWithFiles is Resolve that also returns the file set backing the
// frame.
func (r *Resolver) ResolveWithFiles(ctx context.Context, location string, opts Options) (*dataframe.Frame, *ResolvedFileSet, error) {
	res, err := r.resolve(ctx, location, opts)
	if err != nil {
		return nil, nil, err
	}

	fields := make([]dataframe.Field, 0, len(res.set.Columns))
	for _, name := range res.set.Columns {
		field, _ := res.set.Schema.Field(name)
		fields = append(fields, field)
	}

	plan := planColumns(res.set.Schema, res.set.PartitionColumns, res.set.Columns, opts.Filter)
	partitions := make([]dataframe.Partition, 0, len(res.set.Files))
	for i, file := range res.set.Files {
		partitions = append(partitions, &filePartition{
			store:  res.store,
			reader: r.reader,
			file:   file,
			decode: plan.decode,
			values: res.values[i],
			output: plan.output,
			needed: plan.needed,
			filter: opts.Filter,
		})
	}

	frame := dataframe.New(fields, partitions,
		dataframe.WithConcurrency(r.concurrency),
		dataframe.WithLogger(r.logger),
		dataframe.WithObserver(r.metrics.RecordPartition),
	)
	return frame, res.set, nil
}

// ResolveFiles resolves the table version and returns the pruned live
// files without building a frame.
func (r *Resolver) ResolveFiles(ctx context.Context, location string, opts Options) (*ResolvedFileSet, error) {
	res, err := r.resolve(ctx, location, opts)
	if err != nil {
		return nil, err
	}
	return res.set, nil
}

func (r *Resolver) resolve(ctx context.Context, location string, opts Options) (res *resolution, err error) {
	start := time.Now()
	defer func() {
		r.metrics.RecordResolve(time.Since(start), err)
	}()

	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	snapshot, store, err := r.snapshot(ctx, location, opts)
	if err != nil {
		return nil, err
	}

	if len(snapshot.Files) == 0 && !snapshot.HasHistory() {
		return nil, &EmptySourceError{Location: location}
	}

	columns, err := outputColumns(snapshot.Schema, opts)
	if err != nil {
		return nil, err
	}

	partitionColumns := snapshot.MetaData.PartitionColumns
	files := make([]DataFile, 0, len(snapshot.Files))
	values := make([]map[string]interface{}, 0, len(snapshot.Files))
	for _, file := range snapshot.Files {
		typed, err := typedPartitionValues(file, snapshot.Schema, partitionColumns)
		if err != nil {
			return nil, err
		}
		if opts.Filter != nil && !predicate.MayMatch(opts.Filter, typed) {
			continue
		}
		files = append(files, file.clone())
		values = append(values, typed)
	}

	pruned := len(snapshot.Files) - len(files)
	r.metrics.RecordFiles(len(snapshot.Files), pruned)
	r.logger.Debug("Resolved delta table",
		zap.String("location", location),
		zap.Int64("version", snapshot.Version),
		zap.Int("liveFiles", len(snapshot.Files)),
		zap.Int("prunedFiles", pruned))

	return &resolution{
		set: &ResolvedFileSet{
			Location:         location,
			Version:          snapshot.Version,
			Checkpoint:       snapshot.Checkpoint,
			Schema:           Schema{Fields: slices.Clone(snapshot.Schema.Fields)},
			PartitionColumns: append([]string(nil), partitionColumns...),
			Columns:          columns,
			Files:            files,
			Configuration:    maps.Clone(snapshot.MetaData.Configuration),
		},
		store:  store,
		values: values,
	}, nil
}

// Snapshot replays the log of location up to the requested version
// without pruning or projection. With a cache the snapshot is shared
// between callers and must not be modified.
func (r *Resolver) Snapshot(ctx context.Context, location string, opts Options) (*Snapshot, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	snapshot, _, err := r.snapshot(ctx, location, opts)
	return snapshot, err
}

func (r *Resolver) snapshot(ctx context.Context, location string, opts Options) (*Snapshot, storage.ObjectStore, error) {
	store, root, err := r.registry.Open(ctx, location)
	if err != nil {
		return nil, nil, err
	}

	version := opts.Version
	if r.cache != nil && version != nil {
		cached, ok := r.cache.Get(location, version, opts.Checkpoint)
		r.metrics.RecordCache(ok)
		if ok {
			return cached, store, nil
		}
	}

	listing, err := listLog(ctx, store, root)
	if err != nil {
		return nil, nil, err
	}
	if listing.empty() {
		return nil, nil, &NotFoundError{Path: listing.logDir}
	}

	if opts.Timestamp != nil {
		v, err := versionAt(ctx, store, listing, *opts.Timestamp)
		if err != nil {
			return nil, nil, err
		}
		version = &v
	}

	seg, err := buildSegment(ctx, store, listing, version, opts.Checkpoint)
	if err != nil {
		return nil, nil, err
	}
	snapshot, err := replaySegment(ctx, store, root, location, seg, r.logger)
	if err != nil {
		return nil, nil, err
	}

	if r.cache != nil && version != nil {
		r.cache.Set(location, version, opts.Checkpoint, snapshot)
	}
	return snapshot, store, nil
}

func validateOptions(opts Options) error {
	if opts.Version != nil && opts.Timestamp != nil {
		return fmt.Errorf("%w: version and timestamp are mutually exclusive", ErrInvalidOptions)
	}
	if opts.Version != nil && *opts.Version < 0 {
		return fmt.Errorf("%w: version %d is negative", ErrInvalidOptions, *opts.Version)
	}
	if opts.Checkpoint != nil && *opts.Checkpoint < 0 {
		return fmt.Errorf("%w: checkpoint %d is negative", ErrInvalidOptions, *opts.Checkpoint)
	}
	return nil
}

// outputColumns validates the projection and filter against schema
func outputColumns(schema Schema, opts Options) ([]string, error) {
	if opts.Filter != nil {
		for _, name := range predicate.Columns(opts.Filter) {
			if _, ok := schema.Field(name); !ok {
				return nil, fmt.Errorf("%w: filter column %s", ErrUnknownColumn, name)
			}
		}
	}

	if len(opts.Columns) == 0 {
		return schema.Names(), nil
	}

	seen := make(map[string]bool, len(opts.Columns))
	columns := make([]string, 0, len(opts.Columns))
	for _, name := range opts.Columns {
		if _, ok := schema.Field(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: column %s selected twice", ErrInvalidOptions, name)
		}
		seen[name] = true
		columns = append(columns, name)
	}
	return columns, nil
}
