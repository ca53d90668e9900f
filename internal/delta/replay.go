package delta

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"deltaframe/internal/storage"
)

const maxReaderVersion = 3

// readerFeatures this reader understands at reader version 3
var readerFeatures = map[string]bool{
	"timestampNtz":        true,
	"vacuumProtocolCheck": true,
}

// DataFile is one live data file of a snapshot
type DataFile struct {
	Path             string             `json:"path"`
	Key              string             `json:"key"`
	Size             int64              `json:"size"`
	ModificationTime int64              `json:"modificationTime"`
	PartitionValues  map[string]*string `json:"partitionValues,omitempty"`
	NumRecords       *int64             `json:"numRecords,omitempty"`
}

// clone copies f so that callers cannot reach the snapshot it came from
func (f DataFile) clone() DataFile {
	if f.PartitionValues != nil {
		values := make(map[string]*string, len(f.PartitionValues))
		for k, v := range f.PartitionValues {
			if v != nil {
				value := *v
				v = &value
			}
			values[k] = v
		}
		f.PartitionValues = values
	}
	if f.NumRecords != nil {
		n := *f.NumRecords
		f.NumRecords = &n
	}
	return f
}

// Snapshot is the replayed state of a table at one version, before any
// pruning or projection.
type Snapshot struct {
	Location   string
	Version    int64
	Checkpoint int64
	MetaData   *MetaData
	Protocol   *Protocol
	Schema     Schema
	Files      []DataFile

	// sawDataFiles is set once any add or remove action was replayed
	sawDataFiles bool
}

// HasHistory reports whether the replayed log ever recorded a data file
func (s *Snapshot) HasHistory() bool {
	return s.sawDataFiles
}

type liveEntry struct {
	file    DataFile
	removed bool
}

// replayer applies actions in log order
type replayer struct {
	root    string
	live    map[string]int
	entries []liveEntry
	meta    *MetaData
	proto   *Protocol
	touched bool
}

func newReplayer(root string) *replayer {
	return &replayer{root: root, live: make(map[string]int)}
}

func (r *replayer) apply(action Action) error {
	switch {
	case action.Protocol != nil:
		if err := checkProtocol(action.Protocol); err != nil {
			return err
		}
		r.proto = action.Protocol
	case action.MetaData != nil:
		r.meta = action.MetaData
	case action.Add != nil:
		r.touched = true
		file, err := r.dataFile(action.Add)
		if err != nil {
			return err
		}
		if idx, ok := r.live[file.Path]; ok {
			r.entries[idx].file = file
			return nil
		}
		r.live[file.Path] = len(r.entries)
		r.entries = append(r.entries, liveEntry{file: file})
	case action.Remove != nil:
		r.touched = true
		p := normalizePath(action.Remove.Path)
		if idx, ok := r.live[p]; ok {
			r.entries[idx].removed = true
			delete(r.live, p)
		}
	}
	return nil
}

func (r *replayer) dataFile(add *AddFile) (DataFile, error) {
	p := normalizePath(add.Path)
	key, err := dataFileKey(r.root, p)
	if err != nil {
		return DataFile{}, err
	}
	file := DataFile{
		Path:             p,
		Key:              key,
		Size:             add.Size,
		ModificationTime: add.ModificationTime,
		PartitionValues:  add.PartitionValues,
	}
	if add.Stats != "" {
		// stats are advisory; a file with unreadable stats is still live
		if stats, err := ParseStats(add.Stats); err == nil {
			n := stats.NumRecords
			file.NumRecords = &n
		}
	}
	return file, nil
}

func (r *replayer) files() []DataFile {
	files := make([]DataFile, 0, len(r.live))
	for _, entry := range r.entries {
		if !entry.removed {
			files = append(files, entry.file)
		}
	}
	return files
}

// normalizePath decodes the URL-encoded path stored in add and remove
// actions so both spellings of a path collide.
func normalizePath(p string) string {
	if decoded, err := url.PathUnescape(p); err == nil {
		return decoded
	}
	return p
}

func dataFileKey(root, p string) (string, error) {
	if strings.Contains(p, "://") {
		loc, err := storage.ParseLocation(p)
		if err != nil {
			return "", fmt.Errorf("%w: invalid data file path %q: %v", ErrCorruptLog, p, err)
		}
		return loc.Root, nil
	}
	return storage.Join(root, p), nil
}

func checkProtocol(p *Protocol) error {
	if p.MinReaderVersion > maxReaderVersion {
		return fmt.Errorf("%w: table requires reader version %d, supported up to %d",
			ErrUnsupportedProtocol, p.MinReaderVersion, maxReaderVersion)
	}
	for _, feature := range p.ReaderFeatures {
		if !readerFeatures[feature] {
			return fmt.Errorf("%w: reader feature %q is not supported", ErrUnsupportedProtocol, feature)
		}
	}
	return nil
}

func checkMetaData(m *MetaData) error {
	if mode := m.Configuration["delta.columnMapping.mode"]; mode != "" && mode != "none" {
		return fmt.Errorf("%w: column mapping mode %q is not supported", ErrUnsupportedProtocol, mode)
	}
	if m.Format.Provider != "" && !strings.EqualFold(m.Format.Provider, "parquet") {
		return fmt.Errorf("%w: data file format %q is not supported", ErrUnsupportedProtocol, m.Format.Provider)
	}
	return nil
}

// replaySegment reads the checkpoint and commits of seg and folds them
// into a snapshot.
func replaySegment(ctx context.Context, store storage.ObjectStore, root, location string, seg *logSegment, logger *zap.Logger) (*Snapshot, error) {
	r := newReplayer(root)

	if len(seg.checkpointFiles) > 0 {
		actions, err := readCheckpoint(ctx, store, seg.checkpointFiles)
		if err != nil {
			return nil, err
		}
		for _, action := range actions {
			if err := r.apply(action); err != nil {
				return nil, err
			}
		}
	}

	for _, commit := range seg.commits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := store.Read(ctx, commit.Key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, &NotFoundError{Path: commit.Key}
			}
			return nil, fmt.Errorf("failed to read commit %s: %w", commit.Key, err)
		}
		actions, err := ParseCommit(data)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", commit.Key, err)
		}
		for _, action := range actions {
			if err := r.apply(action); err != nil {
				return nil, err
			}
		}
	}

	if r.meta == nil {
		return nil, fmt.Errorf("%w: no metaData action up to version %d", ErrCorruptLog, seg.version)
	}
	if err := checkMetaData(r.meta); err != nil {
		return nil, err
	}
	schema, err := ParseSchema(r.meta.SchemaString)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Location:     location,
		Version:      seg.version,
		Checkpoint:   seg.start,
		MetaData:     r.meta,
		Protocol:     r.proto,
		Schema:       schema,
		Files:        r.files(),
		sawDataFiles: r.touched,
	}

	logger.Debug("Replayed delta log",
		zap.String("location", location),
		zap.Int64("checkpoint", seg.start),
		zap.Int64("version", seg.version),
		zap.Int("checkpointParts", len(seg.checkpointFiles)),
		zap.Int("commits", len(seg.commits)),
		zap.Int("liveFiles", len(snapshot.Files)))

	return snapshot, nil
}
