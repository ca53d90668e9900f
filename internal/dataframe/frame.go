// Package dataframe provides the lazy, file-partitioned frame returned by
// the table resolver. Nothing is read until one of the compute methods
// is called; each partition is read independently and the partitions
// are read in parallel.
package dataframe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Field is one output column. Type is a Delta primitive type name such
// as "long", "string" or "decimal(10,2)".
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Partition is one independently readable unit of a frame, usually one
// data file. Read returns rows already projected onto the frame's fields.
type Partition interface {
	Key() string
	Read(ctx context.Context) ([][]interface{}, error)
}

// Observer is notified after each partition read.
type Observer func(key string, rows int, elapsed time.Duration, err error)

// Frame is a lazy handle over a set of partitions
type Frame struct {
	fields      []Field
	partitions  []Partition
	concurrency int
	logger      *zap.Logger
	observer    Observer
}

// Option configures a Frame
type Option func(*Frame)

// WithConcurrency bounds the number of partitions read at once
func WithConcurrency(n int) Option {
	return func(f *Frame) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(f *Frame) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithObserver installs a per-partition callback
func WithObserver(observer Observer) Option {
	return func(f *Frame) {
		f.observer = observer
	}
}

// New creates a frame. Fields and partitions are not copied.
func New(fields []Field, partitions []Partition, opts ...Option) *Frame {
	f := &Frame{
		fields:      fields,
		partitions:  partitions,
		concurrency: runtime.GOMAXPROCS(0),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Columns returns the output column names in order
func (f *Frame) Columns() []string {
	names := make([]string, len(f.fields))
	for i, field := range f.fields {
		names[i] = field.Name
	}
	return names
}

// Fields returns a copy of the output fields
func (f *Frame) Fields() []Field {
	return append([]Field(nil), f.fields...)
}

// NPartitions returns the number of partitions
func (f *Frame) NPartitions() int {
	return len(f.partitions)
}

// PartitionKeys returns the partition keys in order
func (f *Frame) PartitionKeys() []string {
	keys := make([]string, len(f.partitions))
	for i, p := range f.partitions {
		keys[i] = p.Key()
	}
	return keys
}

// Select returns a frame exposing only columns, in the given order. It
// stays lazy.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	index := make(map[string]int, len(f.fields))
	for i, field := range f.fields {
		index[field.Name] = i
	}

	positions := make([]int, len(columns))
	fields := make([]Field, len(columns))
	for i, name := range columns {
		pos, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("column %q not in frame", name)
		}
		positions[i] = pos
		fields[i] = f.fields[pos]
	}

	partitions := make([]Partition, len(f.partitions))
	for i, p := range f.partitions {
		partitions[i] = &projection{inner: p, positions: positions}
	}

	return &Frame{
		fields:      fields,
		partitions:  partitions,
		concurrency: f.concurrency,
		logger:      f.logger,
		observer:    f.observer,
	}, nil
}

// Compute reads every partition and concatenates the rows in partition
// order. The first failing partition cancels the rest.
func (f *Frame) Compute(ctx context.Context) (*Table, error) {
	results := make([][][]interface{}, len(f.partitions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i := range f.partitions {
		g.Go(func() error {
			rows, err := f.read(gctx, f.partitions[i])
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, rows := range results {
		total += len(rows)
	}
	table := &Table{Fields: f.Fields(), Rows: make([][]interface{}, 0, total)}
	for _, rows := range results {
		table.Rows = append(table.Rows, rows...)
	}

	f.logger.Debug("frame computed",
		zap.Int("partitions", len(f.partitions)),
		zap.Int("rows", total))
	return table, nil
}

// ComputePartition reads a single partition
func (f *Frame) ComputePartition(ctx context.Context, i int) (*Table, error) {
	if i < 0 || i >= len(f.partitions) {
		return nil, fmt.Errorf("partition %d out of range [0, %d)", i, len(f.partitions))
	}
	rows, err := f.read(ctx, f.partitions[i])
	if err != nil {
		return nil, err
	}
	return &Table{Fields: f.Fields(), Rows: rows}, nil
}

// Head reads partitions in order until n rows are collected
func (f *Frame) Head(ctx context.Context, n int) (*Table, error) {
	table := &Table{Fields: f.Fields(), Rows: make([][]interface{}, 0)}
	for _, p := range f.partitions {
		if len(table.Rows) >= n {
			break
		}
		rows, err := f.read(ctx, p)
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, rows...)
	}
	if len(table.Rows) > n {
		table.Rows = table.Rows[:n]
	}
	return table, nil
}

// Count computes the frame and returns its row count
func (f *Frame) Count(ctx context.Context) (int, error) {
	table, err := f.Compute(ctx)
	if err != nil {
		return 0, err
	}
	return table.NumRows(), nil
}

func (f *Frame) read(ctx context.Context, p Partition) ([][]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := p.Read(ctx)
	if f.observer != nil {
		f.observer(p.Key(), len(rows), time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read partition %s: %w", p.Key(), err)
	}
	return rows, nil
}

type projection struct {
	inner     Partition
	positions []int
}

func (p *projection) Key() string { return p.inner.Key() }

func (p *projection) Read(ctx context.Context) ([][]interface{}, error) {
	rows, err := p.inner.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		projected := make([]interface{}, len(p.positions))
		for j, pos := range p.positions {
			projected[j] = row[pos]
		}
		out[i] = projected
	}
	return out, nil
}
