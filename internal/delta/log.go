package delta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"deltaframe/internal/storage"
)

const (
	logDirName         = "_delta_log"
	lastCheckpointName = "_last_checkpoint"
)

var (
	commitFileRegex      = regexp.MustCompile(`^(\d{20})\.json$`)
	checkpointRegex      = regexp.MustCompile(`^(\d{20})\.checkpoint\.parquet$`)
	checkpointPartsRegex = regexp.MustCompile(`^(\d{20})\.checkpoint\.(\d{10})\.(\d{10})\.parquet$`)
)

// CommitFileName returns the file name of commit version
func CommitFileName(version int64) string {
	return fmt.Sprintf("%020d.json", version)
}

// CheckpointFileName returns the file name of a single-part checkpoint
func CheckpointFileName(version int64) string {
	return fmt.Sprintf("%020d.checkpoint.parquet", version)
}

// LastCheckpoint is the content of _delta_log/_last_checkpoint
type LastCheckpoint struct {
	Version int64 `json:"version"`
	Size    int64 `json:"size"`
	Parts   *int  `json:"parts,omitempty"`
}

// logListing is what the log directory holds
type logListing struct {
	logDir            string
	commits           map[int64]storage.ObjectInfo
	checkpoints       map[int64][]storage.ObjectInfo // complete checkpoints only
	hasLastCheckpoint bool
}

func listLog(ctx context.Context, store storage.ObjectStore, root string) (*logListing, error) {
	logDir := storage.Join(root, logDirName)
	objects, err := store.List(ctx, logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", logDir, err)
	}

	listing := &logListing{
		logDir:      logDir,
		commits:     make(map[int64]storage.ObjectInfo),
		checkpoints: make(map[int64][]storage.ObjectInfo),
	}
	type partSet struct {
		total int
		files map[int]storage.ObjectInfo
	}
	parts := make(map[int64]*partSet)

	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !sameDir(path.Dir(obj.Key), logDir) {
			continue
		}
		switch {
		case name == lastCheckpointName:
			listing.hasLastCheckpoint = true
		case commitFileRegex.MatchString(name):
			listing.commits[parseVersion(commitFileRegex.FindStringSubmatch(name)[1])] = obj
		case checkpointRegex.MatchString(name):
			v := parseVersion(checkpointRegex.FindStringSubmatch(name)[1])
			listing.checkpoints[v] = []storage.ObjectInfo{obj}
		case checkpointPartsRegex.MatchString(name):
			groups := checkpointPartsRegex.FindStringSubmatch(name)
			v := parseVersion(groups[1])
			part, _ := strconv.Atoi(groups[2])
			total, _ := strconv.Atoi(groups[3])
			set, ok := parts[v]
			if !ok || set.total != total {
				set = &partSet{total: total, files: make(map[int]storage.ObjectInfo)}
				parts[v] = set
			}
			set.files[part] = obj
		}
	}

	for v, set := range parts {
		if _, single := listing.checkpoints[v]; single || len(set.files) != set.total {
			continue
		}
		files := make([]storage.ObjectInfo, 0, set.total)
		for i := 1; i <= set.total; i++ {
			file, ok := set.files[i]
			if !ok {
				break
			}
			files = append(files, file)
		}
		if len(files) == set.total {
			listing.checkpoints[v] = files
		}
	}

	return listing, nil
}

// sameDir compares directories ignoring a leading slash, which some
// backends add to listed keys.
func sameDir(a, b string) bool {
	return strings.TrimPrefix(path.Clean(a), "/") == strings.TrimPrefix(path.Clean(b), "/")
}

func parseVersion(digits string) int64 {
	v, _ := strconv.ParseInt(digits, 10, 64)
	return v
}

func (l *logListing) empty() bool {
	return len(l.commits) == 0 && len(l.checkpoints) == 0
}

// latest returns the highest version any log file names
func (l *logListing) latest() int64 {
	latest := int64(-1)
	for v := range l.commits {
		if v > latest {
			latest = v
		}
	}
	for v := range l.checkpoints {
		if v > latest {
			latest = v
		}
	}
	return latest
}

// contiguousEnd returns the last version of the unbroken commit run after start
func (l *logListing) contiguousEnd(start int64) int64 {
	end := start
	for {
		if _, ok := l.commits[end+1]; !ok {
			return end
		}
		end++
	}
}

func (l *logListing) checkpointVersions() []int64 {
	versions := make([]int64, 0, len(l.checkpoints))
	for v := range l.checkpoints {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions
}

func readLastCheckpoint(ctx context.Context, store storage.ObjectStore, logDir string) (*LastCheckpoint, error) {
	data, err := store.Read(ctx, storage.Join(logDir, lastCheckpointName))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var last LastCheckpoint
	if err := json.Unmarshal(data, &last); err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %v", ErrCorruptLog, lastCheckpointName, err)
	}
	return &last, nil
}

// logSegment is the set of log files to replay for one version
type logSegment struct {
	// start is the checkpoint version replay begins from, 0 when replaying
	// from the first commit.
	start           int64
	checkpointFiles []storage.ObjectInfo
	commits         []storage.ObjectInfo
	version         int64
	latest          int64
}

// buildSegment picks the replay start and the commits to apply. An
// explicit checkpoint must exist before any version check happens.
func buildSegment(ctx context.Context, store storage.ObjectStore, listing *logListing, version, checkpoint *int64) (*logSegment, error) {
	if listing.empty() {
		return nil, &NotFoundError{Path: listing.logDir}
	}

	seg := &logSegment{latest: listing.latest()}
	fromCommitZero := false

	switch {
	case checkpoint != nil:
		c := *checkpoint
		if files, ok := listing.checkpoints[c]; ok {
			seg.start, seg.checkpointFiles = c, files
		} else if c == 0 {
			if _, ok := listing.commits[0]; !ok {
				return nil, &NotFoundError{Path: storage.Join(listing.logDir, CommitFileName(0))}
			}
			fromCommitZero = true
		} else {
			return nil, &NotFoundError{
				Path:       storage.Join(listing.logDir, CheckpointFileName(c)),
				Checkpoint: &c,
			}
		}

	default:
		target := seg.latest
		if version != nil {
			target = *version
		}
		start, ok, err := pickCheckpoint(ctx, store, listing, target)
		if err != nil {
			return nil, err
		}
		switch {
		case ok:
			seg.start, seg.checkpointFiles = start, listing.checkpoints[start]
		case hasCommit(listing, 0):
			fromCommitZero = true
		default:
			// history before the first checkpoint was cleaned up
			versions := listing.checkpointVersions()
			if len(versions) == 0 {
				return nil, &NotFoundError{Path: storage.Join(listing.logDir, CommitFileName(0))}
			}
			first := versions[0]
			return nil, &RangeError{Requested: target, Checkpoint: first, Min: first, Max: listing.contiguousEnd(first)}
		}
	}

	end := listing.contiguousEnd(seg.start)
	if fromCommitZero {
		end = listing.contiguousEnd(0)
	}

	seg.version = end
	if version != nil {
		if *version < seg.start || *version > end {
			return nil, &RangeError{Requested: *version, Checkpoint: seg.start, Min: seg.start, Max: end}
		}
		seg.version = *version
	}

	first := seg.start + 1
	if fromCommitZero {
		first = 0
	}
	for v := first; v <= seg.version; v++ {
		seg.commits = append(seg.commits, listing.commits[v])
	}
	return seg, nil
}

func hasCommit(listing *logListing, version int64) bool {
	_, ok := listing.commits[version]
	return ok
}

// pickCheckpoint prefers the _last_checkpoint hint, then the newest
// complete checkpoint not beyond target.
func pickCheckpoint(ctx context.Context, store storage.ObjectStore, listing *logListing, target int64) (int64, bool, error) {
	if listing.hasLastCheckpoint {
		last, err := readLastCheckpoint(ctx, store, listing.logDir)
		if err != nil {
			return 0, false, err
		}
		if last != nil && last.Version <= target {
			if _, ok := listing.checkpoints[last.Version]; ok {
				return last.Version, true, nil
			}
		}
	}

	versions := listing.checkpointVersions()
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i] <= target {
			return versions[i], true, nil
		}
	}
	return 0, false, nil
}
