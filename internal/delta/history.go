package delta

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"deltaframe/internal/storage"
)

// CommitRecord summarizes one commit of the table history
type CommitRecord struct {
	Version             int64                  `json:"version"`
	Timestamp           time.Time              `json:"timestamp"`
	Operation           string                 `json:"operation,omitempty"`
	OperationParameters map[string]interface{} `json:"operationParameters,omitempty"`
	UserName            string                 `json:"userName,omitempty"`
	EngineInfo          string                 `json:"engineInfo,omitempty"`
	IsBlindAppend       *bool                  `json:"isBlindAppend,omitempty"`
}

// History returns up to limit commits, newest first. limit <= 0 returns
// every commit still present in the log.
func (r *Resolver) History(ctx context.Context, location string, limit int) ([]CommitRecord, error) {
	store, root, err := r.registry.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	listing, err := listLog(ctx, store, root)
	if err != nil {
		return nil, err
	}
	if listing.empty() {
		return nil, &NotFoundError{Path: listing.logDir}
	}

	versions := listing.commitVersions()
	if limit > 0 && len(versions) > limit {
		versions = versions[len(versions)-limit:]
	}

	records := make([]CommitRecord, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		record, err := readCommitRecord(ctx, store, listing, versions[i])
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// VersionAt returns the newest version committed at or before t
func (r *Resolver) VersionAt(ctx context.Context, location string, t time.Time) (int64, error) {
	store, root, err := r.registry.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	listing, err := listLog(ctx, store, root)
	if err != nil {
		return 0, err
	}
	if listing.empty() {
		return 0, &NotFoundError{Path: listing.logDir}
	}
	return versionAt(ctx, store, listing, t)
}

// LatestVersion returns the highest version named by any log file
func (r *Resolver) LatestVersion(ctx context.Context, location string) (int64, error) {
	store, root, err := r.registry.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	listing, err := listLog(ctx, store, root)
	if err != nil {
		return 0, err
	}
	if listing.empty() {
		return 0, &NotFoundError{Path: listing.logDir}
	}
	return listing.latest(), nil
}

func versionAt(ctx context.Context, store storage.ObjectStore, listing *logListing, t time.Time) (int64, error) {
	versions := listing.commitVersions()
	if len(versions) == 0 {
		// only checkpoints are left; their versions cannot be dated
		cps := listing.checkpointVersions()
		return 0, &RangeError{Requested: -1, Checkpoint: cps[0], Min: cps[0], Max: listing.latest(), At: &t}
	}

	for i := len(versions) - 1; i >= 0; i-- {
		record, err := readCommitRecord(ctx, store, listing, versions[i])
		if err != nil {
			return 0, err
		}
		if !record.Timestamp.After(t) {
			return versions[i], nil
		}
	}

	first := versions[0]
	return 0, &RangeError{Requested: -1, Checkpoint: first, Min: first, Max: listing.latest(), At: &t}
}

// readCommitRecord reads the commitInfo of a commit, falling back to the
// file modification time when the commit carries none.
func readCommitRecord(ctx context.Context, store storage.ObjectStore, listing *logListing, version int64) (CommitRecord, error) {
	obj := listing.commits[version]
	data, err := store.Read(ctx, obj.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return CommitRecord{}, &NotFoundError{Path: obj.Key}
		}
		return CommitRecord{}, fmt.Errorf("failed to read commit %s: %w", obj.Key, err)
	}
	actions, err := ParseCommit(data)
	if err != nil {
		return CommitRecord{}, fmt.Errorf("commit %s: %w", obj.Key, err)
	}

	record := CommitRecord{Version: version, Timestamp: obj.ModTime.UTC()}
	for _, action := range actions {
		info := action.CommitInfo
		if info == nil {
			continue
		}
		if ts := info.CommitTime(); !ts.IsZero() {
			record.Timestamp = ts
		}
		record.Operation = info.Operation
		record.OperationParameters = info.OperationParameters
		record.UserName = info.UserName
		record.EngineInfo = info.EngineInfo
		record.IsBlindAppend = info.IsBlindAppend
		break
	}
	return record, nil
}

func (l *logListing) commitVersions() []int64 {
	versions := make([]int64, 0, len(l.commits))
	for v := range l.commits {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions
}
