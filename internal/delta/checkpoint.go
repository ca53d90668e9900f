package delta

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"deltaframe/internal/storage"
)

const checkpointBatchSize = 256

// checkpointRow is one row of a checkpoint file. Each row carries a
// single action; the other groups are null. Nullability follows the
// checkpoint schema written by Delta writers, where nearly every group
// and string field is optional.
type checkpointRow struct {
	Add      *checkpointAdd      `parquet:"add,optional"`
	Remove   *checkpointRemove   `parquet:"remove,optional"`
	MetaData *checkpointMetaData `parquet:"metaData,optional"`
	Protocol *checkpointProtocol `parquet:"protocol,optional"`
}

type checkpointAdd struct {
	Path             string             `parquet:"path,optional"`
	PartitionValues  map[string]*string `parquet:"partitionValues,optional"`
	Size             int64              `parquet:"size"`
	ModificationTime int64              `parquet:"modificationTime"`
	DataChange       bool               `parquet:"dataChange"`
	Stats            *string            `parquet:"stats,optional"`
}

type checkpointRemove struct {
	Path              string `parquet:"path,optional"`
	DeletionTimestamp *int64 `parquet:"deletionTimestamp,optional"`
	DataChange        bool   `parquet:"dataChange"`
}

type checkpointFormat struct {
	Provider string `parquet:"provider,optional"`
}

type checkpointMetaData struct {
	ID               string             `parquet:"id,optional"`
	Name             *string            `parquet:"name,optional"`
	Description      *string            `parquet:"description,optional"`
	Format           *checkpointFormat  `parquet:"format,optional"`
	SchemaString     string             `parquet:"schemaString,optional"`
	PartitionColumns []string           `parquet:"partitionColumns,optional,list"`
	Configuration    map[string]*string `parquet:"configuration,optional"`
	CreatedTime      *int64             `parquet:"createdTime,optional"`
}

type checkpointProtocol struct {
	MinReaderVersion int32    `parquet:"minReaderVersion"`
	MinWriterVersion int32    `parquet:"minWriterVersion"`
	ReaderFeatures   []string `parquet:"readerFeatures,optional,list"`
	WriterFeatures   []string `parquet:"writerFeatures,optional,list"`
}

// readCheckpoint loads the actions of every part of a checkpoint
func readCheckpoint(ctx context.Context, store storage.ObjectStore, files []storage.ObjectInfo) ([]Action, error) {
	var actions []Action
	for _, file := range files {
		data, err := store.Read(ctx, file.Key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, &NotFoundError{Path: file.Key}
			}
			return nil, fmt.Errorf("failed to read checkpoint %s: %w", file.Key, err)
		}
		part, err := ParseCheckpoint(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", file.Key, err)
		}
		actions = append(actions, part...)
	}
	return actions, nil
}

// ParseCheckpoint decodes the actions held in a checkpoint parquet file
func ParseCheckpoint(ctx context.Context, data []byte) ([]Action, error) {
	// NewGenericReader panics on files it cannot open
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid checkpoint file: %v", ErrCorruptLog, err)
	}

	reader := parquet.NewGenericReader[checkpointRow](file)
	defer reader.Close()

	actions := make([]Action, 0, file.NumRows())
	buf := make([]checkpointRow, checkpointBatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clear(buf)
		n, readErr := reader.Read(buf)
		for _, row := range buf[:n] {
			if action, ok := row.action(); ok {
				actions = append(actions, action)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("%w: failed to read checkpoint rows: %v", ErrCorruptLog, readErr)
		}
		if n == 0 {
			break
		}
	}
	return actions, nil
}

func (r checkpointRow) action() (Action, bool) {
	switch {
	case r.Add != nil && r.Add.Path != "":
		add := &AddFile{
			Path:             r.Add.Path,
			PartitionValues:  make(map[string]*string, len(r.Add.PartitionValues)),
			Size:             r.Add.Size,
			ModificationTime: r.Add.ModificationTime,
			DataChange:       r.Add.DataChange,
		}
		for k, v := range r.Add.PartitionValues {
			if v == nil {
				add.PartitionValues[k] = nil
				continue
			}
			value := *v
			add.PartitionValues[k] = &value
		}
		if r.Add.Stats != nil {
			add.Stats = *r.Add.Stats
		}
		return Action{Add: add}, true

	case r.Remove != nil && r.Remove.Path != "":
		return Action{Remove: &RemoveFile{
			Path:              r.Remove.Path,
			DeletionTimestamp: r.Remove.DeletionTimestamp,
			DataChange:        r.Remove.DataChange,
		}}, true

	case r.MetaData != nil && r.MetaData.SchemaString != "":
		meta := &MetaData{
			ID:               r.MetaData.ID,
			SchemaString:     r.MetaData.SchemaString,
			PartitionColumns: r.MetaData.PartitionColumns,
			Configuration:    make(map[string]string, len(r.MetaData.Configuration)),
			CreatedTime:      r.MetaData.CreatedTime,
		}
		if meta.PartitionColumns == nil {
			meta.PartitionColumns = []string{}
		}
		if r.MetaData.Format != nil {
			meta.Format = Format{Provider: r.MetaData.Format.Provider}
		}
		for k, v := range r.MetaData.Configuration {
			if v != nil {
				meta.Configuration[k] = *v
			}
		}
		if r.MetaData.Name != nil {
			meta.Name = *r.MetaData.Name
		}
		if r.MetaData.Description != nil {
			meta.Description = *r.MetaData.Description
		}
		return Action{MetaData: meta}, true

	case r.Protocol != nil && r.Protocol.MinReaderVersion > 0:
		return Action{Protocol: &Protocol{
			MinReaderVersion: int(r.Protocol.MinReaderVersion),
			MinWriterVersion: int(r.Protocol.MinWriterVersion),
			ReaderFeatures:   r.Protocol.ReaderFeatures,
			WriterFeatures:   r.Protocol.WriterFeatures,
		}}, true
	}
	return Action{}, false
}
