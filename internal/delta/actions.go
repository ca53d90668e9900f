package delta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Action is one line of a commit file. Exactly one field is set.
type Action struct {
	CommitInfo *CommitInfo `json:"commitInfo,omitempty"`
	Protocol   *Protocol   `json:"protocol,omitempty"`
	MetaData   *MetaData   `json:"metaData,omitempty"`
	Add        *AddFile    `json:"add,omitempty"`
	Remove     *RemoveFile `json:"remove,omitempty"`
}

// CommitInfo records provenance for a commit
type CommitInfo struct {
	Timestamp           int64                  `json:"timestamp"`
	UserID              string                 `json:"userId,omitempty"`
	UserName            string                 `json:"userName,omitempty"`
	Operation           string                 `json:"operation"`
	OperationParameters map[string]interface{} `json:"operationParameters,omitempty"`
	OperationMetrics    map[string]interface{} `json:"operationMetrics,omitempty"`
	ReadVersion         *int64                 `json:"readVersion,omitempty"`
	IsolationLevel      string                 `json:"isolationLevel,omitempty"`
	IsBlindAppend       *bool                  `json:"isBlindAppend,omitempty"`
	EngineInfo          string                 `json:"engineInfo,omitempty"`
}

// Protocol represents the Delta protocol version
type Protocol struct {
	MinReaderVersion int      `json:"minReaderVersion"`
	MinWriterVersion int      `json:"minWriterVersion"`
	ReaderFeatures   []string `json:"readerFeatures,omitempty"`
	WriterFeatures   []string `json:"writerFeatures,omitempty"`
}

// Format names the data file format
type Format struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options,omitempty"`
}

// MetaData represents table metadata in the Delta log
type MetaData struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Format           Format            `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration,omitempty"`
	CreatedTime      *int64            `json:"createdTime,omitempty"`
}

// AddFile adds a data file to the table
type AddFile struct {
	Path             string             `json:"path"`
	PartitionValues  map[string]*string `json:"partitionValues"`
	Size             int64              `json:"size"`
	ModificationTime int64              `json:"modificationTime"`
	DataChange       bool               `json:"dataChange"`
	Stats            string             `json:"stats,omitempty"`
	Tags             map[string]string  `json:"tags,omitempty"`
}

// RemoveFile logically deletes a data file
type RemoveFile struct {
	Path              string             `json:"path"`
	DeletionTimestamp *int64             `json:"deletionTimestamp,omitempty"`
	DataChange        bool               `json:"dataChange"`
	PartitionValues   map[string]*string `json:"partitionValues,omitempty"`
	Size              *int64             `json:"size,omitempty"`
}

// FileStats contains file-level statistics
type FileStats struct {
	NumRecords int64                  `json:"numRecords"`
	MinValues  map[string]interface{} `json:"minValues"`
	MaxValues  map[string]interface{} `json:"maxValues"`
	NullCount  map[string]interface{} `json:"nullCount"`
}

// ParseCommit parses a newline-delimited commit file
func ParseCommit(data []byte) ([]Action, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	actions := make([]Action, 0)
	for dec.More() {
		var action Action
		if err := dec.Decode(&action); err != nil {
			return nil, fmt.Errorf("%w: failed to parse action %d: %v", ErrCorruptLog, len(actions), err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// ParseStats parses the stats field of an add action
func ParseStats(statsJSON string) (*FileStats, error) {
	if statsJSON == "" {
		return nil, fmt.Errorf("stats are empty")
	}

	var stats FileStats
	if err := json.Unmarshal([]byte(statsJSON), &stats); err != nil {
		return nil, fmt.Errorf("failed to parse stats: %w", err)
	}
	return &stats, nil
}

// CommitTime returns the commit timestamp, or the zero time when absent
func (c *CommitInfo) CommitTime() time.Time {
	if c == nil || c.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.Timestamp).UTC()
}
