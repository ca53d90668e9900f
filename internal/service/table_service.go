package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deltaframe/internal/dataframe"
	"deltaframe/internal/delta"
	"deltaframe/internal/model"
	"deltaframe/internal/predicate"
	"deltaframe/internal/repository"
	"deltaframe/internal/utils"
)

type TableService interface {
	RegisterTable(ctx context.Context, req *model.RegisterTableRequest) (*model.Table, error)
	GetTable(ctx context.Context, name string) (*model.Table, error)
	ListTables(ctx context.Context, req *ListTablesRequest) (*ListTablesResponse, error)
	DeleteTable(ctx context.Context, name string) error
	ResolveFiles(ctx context.Context, req *model.ResolveRequest) (*delta.ResolvedFileSet, error)
	Read(ctx context.Context, req *model.ReadRequest) (*ReadResult, error)
	History(ctx context.Context, name string, limit int) ([]delta.CommitRecord, error)
}

type ListTablesRequest struct {
	Limit  int `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `form:"offset" validate:"omitempty,min=0"`
}

type ListTablesResponse struct {
	Tables []*model.Table `json:"tables"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ReadResult is a materialized read together with its metadata
type ReadResult struct {
	Table    *dataframe.Table
	Metadata model.ReadMetadata
}

type TableServiceConfig struct {
	// MaxReadRows caps the limit of a read. Zero means uncapped.
	MaxReadRows int
}

type tableService struct {
	repo     repository.TableRepository
	resolver *delta.Resolver
	cache    *delta.SnapshotCache
	usage    *UsageCollector
	config   TableServiceConfig
	logger   *zap.Logger
}

// NewTableService creates a new instance of TableService. cache and usage
// may be nil.
func NewTableService(repo repository.TableRepository, resolver *delta.Resolver, cache *delta.SnapshotCache,
	usage *UsageCollector, config TableServiceConfig, logger *zap.Logger) TableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &tableService{
		repo:     repo,
		resolver: resolver,
		cache:    cache,
		usage:    usage,
		config:   config,
		logger:   logger,
	}
}

func (s *tableService) RegisterTable(ctx context.Context, req *model.RegisterTableRequest) (*model.Table, error) {
	// Only locations holding a readable Delta log can be registered
	version, err := s.resolver.LatestVersion(ctx, req.Location)
	if err != nil {
		return nil, err
	}

	table := &model.Table{
		Name:        req.Name,
		Location:    req.Location,
		Description: req.Description,
		Properties:  model.TableProperties(req.Properties),
	}
	if err := s.repo.Create(ctx, table); err != nil {
		return nil, catalogError(err, req.Name)
	}

	s.logger.Info("Table registered",
		zap.String("table", table.Name),
		zap.String("location", table.Location),
		zap.Int64("version", version))
	return table, nil
}

func (s *tableService) GetTable(ctx context.Context, name string) (*model.Table, error) {
	table, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, catalogError(err, name)
	}
	return table, nil
}

func (s *tableService) ListTables(ctx context.Context, req *ListTablesRequest) (*ListTablesResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	tables, total, err := s.repo.List(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, utils.NewCatalogError(err, "failed to list tables")
	}

	return &ListTablesResponse{
		Tables: tables,
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	}, nil
}

func (s *tableService) DeleteTable(ctx context.Context, name string) error {
	table, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return catalogError(err, name)
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return catalogError(err, name)
	}
	if s.cache != nil {
		s.cache.Invalidate(table.Location)
	}

	s.logger.Info("Table deleted", zap.String("table", name))
	return nil
}

func (s *tableService) ResolveFiles(ctx context.Context, req *model.ResolveRequest) (*delta.ResolvedFileSet, error) {
	location, opts, err := s.resolveOptions(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.resolver.ResolveFiles(ctx, location, opts)
}

func (s *tableService) Read(ctx context.Context, req *model.ReadRequest) (result *ReadResult, err error) {
	start := time.Now()
	req.ApplyDefaults(s.config.MaxReadRows)

	location, opts, err := s.resolveOptions(ctx, &req.ResolveRequest)
	if err != nil {
		return nil, err
	}
	defer func() {
		rows := 0
		if result != nil {
			rows = result.Table.NumRows()
		}
		s.usage.RecordRead(usageKey(req.Table, location), rows, time.Since(start), err)
	}()

	frame, set, err := s.resolver.ResolveWithFiles(ctx, location, opts)
	if err != nil {
		return nil, err
	}

	// One extra row tells whether the result was cut
	table, err := frame.Head(ctx, req.Limit+1)
	if err != nil {
		return nil, err
	}
	truncated := table.NumRows() > req.Limit
	if truncated {
		table.Rows = table.Rows[:req.Limit]
	}

	return &ReadResult{
		Table: table,
		Metadata: model.ReadMetadata{
			Location:        set.Location,
			Version:         set.Version,
			Checkpoint:      set.Checkpoint,
			Partitions:      frame.NPartitions(),
			RowCount:        table.NumRows(),
			Truncated:       truncated,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			ExecutedAt:      start.UTC(),
		},
	}, nil
}

func (s *tableService) History(ctx context.Context, name string, limit int) ([]delta.CommitRecord, error) {
	table, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, catalogError(err, name)
	}
	if limit <= 0 || limit > model.MaxHistoryLimit {
		limit = model.MaxHistoryLimit
	}
	return s.resolver.History(ctx, table.Location, limit)
}

// resolveOptions looks up the catalog location and builds resolver options
func (s *tableService) resolveOptions(ctx context.Context, req *model.ResolveRequest) (string, delta.Options, error) {
	location := req.Location
	if req.Table != "" {
		table, err := s.repo.GetByName(ctx, req.Table)
		if err != nil {
			return "", delta.Options{}, catalogError(err, req.Table)
		}
		location = table.Location
	}

	filter, err := predicate.ParseJSON(req.Filter)
	if err != nil {
		return "", delta.Options{}, err
	}

	return location, delta.Options{
		Version:    req.Version,
		Checkpoint: req.Checkpoint,
		Timestamp:  req.Timestamp,
		Filter:     filter,
		Columns:    req.Columns,
	}, nil
}

func catalogError(err error, name string) error {
	switch {
	case errors.Is(err, repository.ErrTableNotFound):
		return utils.NewErrorBuilder(utils.ErrCodeTableNotFound).WithDetails(name).WithCause(err).Build()
	case errors.Is(err, repository.ErrTableAlreadyExists):
		return utils.NewErrorBuilder(utils.ErrCodeTableExists).WithDetails(name).WithCause(err).Build()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return utils.NewCatalogError(err, fmt.Sprintf("table %s", name))
	}
}

func usageKey(table, location string) string {
	if table != "" {
		return table
	}
	return location
}
