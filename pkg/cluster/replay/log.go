// Package replay implements the per-peer, compressed, append-only replay
// log that lets a disconnected peer catch up without state loss.
package replay

import (
	"bufio"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/wardenhq/sentryd/pkg/cluster"
	"github.com/wardenhq/sentryd/pkg/log"
)

// maxRecordsPerFile triggers a rotation once reached.
const maxRecordsPerFile = 50000

const currentFileName = "current"

// Log manages the replay log for every peer under one base directory,
// `<state_dir>/cluster/log/<peer>/`. One peerLog per peer serializes its
// own writes; peers never contend with each other.
type Log struct {
	baseDir string

	mu    sync.Mutex
	peers map[string]*peerLog
}

// peerLog is the single writer (and, for replay, single reader) for one
// peer's directory.
type peerLog struct {
	mu      sync.Mutex
	dir     string
	file    *os.File
	zw      *zlib.Writer
	count   int
	lastTs  float64
}

// NewLog creates a Log rooted at baseDir. baseDir is created on first use.
func NewLog(baseDir string) *Log {
	return &Log{baseDir: baseDir, peers: make(map[string]*peerLog)}
}

func (l *Log) peerLogFor(peer string) (*peerLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pl, ok := l.peers[peer]; ok {
		return pl, nil
	}

	dir := filepath.Join(l.baseDir, peer)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("replay: create peer dir %s: %w", dir, err)
	}
	pl := &peerLog{dir: dir}
	l.peers[peer] = pl
	return pl, nil
}

// openCurrentForAppend opens (creating if needed) this peer's current
// file with an active zlib.Writer appending to it.
func (pl *peerLog) openCurrentForAppend() error {
	if pl.file != nil {
		return nil
	}

	path := filepath.Join(pl.dir, currentFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("replay: open %s: %w", path, err)
	}

	pl.file = f
	pl.zw = zlib.NewWriter(f)
	return nil
}

// Append writes one record to peer's current log file and flushes it so
// a concurrent reader can observe it, rotating first if the file has
// reached maxRecordsPerFile.
func (l *Log) Append(peer string, ts float64, except string, msg cluster.Message) error {
	pl, err := l.peerLogFor(peer)
	if err != nil {
		return err
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.count >= maxRecordsPerFile {
		if err := pl.rotateLocked(); err != nil {
			return err
		}
	}
	if err := pl.openCurrentForAppend(); err != nil {
		return err
	}

	encodedMsg, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("replay: marshal message: %w", err)
	}

	rec := Record{Ts: ts, Except: except, Message: string(encodedMsg)}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("replay: marshal record: %w", err)
	}

	if err := cluster.WriteNetstring(pl.zw, payload); err != nil {
		return fmt.Errorf("replay: write record: %w", err)
	}
	if err := pl.zw.Flush(); err != nil {
		return fmt.Errorf("replay: flush: %w", err)
	}

	pl.count++
	if ts > pl.lastTs {
		pl.lastTs = ts
	}
	return nil
}

// Rotate closes peer's current file (writing the zlib trailer) and
// renames it to `<lastTs+1>`, unconditionally — even if the file is
// empty. This is a deliberate choice, preserved rather than special-cased
// away: see DESIGN.md for the reasoning.
func (l *Log) Rotate(peer string) error {
	pl, err := l.peerLogFor(peer)
	if err != nil {
		return err
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.rotateLocked()
}

func (pl *peerLog) rotateLocked() error {
	if pl.file == nil {
		if err := pl.openCurrentForAppend(); err != nil {
			return err
		}
	}

	if err := pl.zw.Close(); err != nil {
		return fmt.Errorf("replay: close writer during rotate: %w", err)
	}
	if err := pl.file.Close(); err != nil {
		return fmt.Errorf("replay: close file during rotate: %w", err)
	}

	rotatedName := strconv.FormatInt(int64(pl.lastTs)+1, 10)
	oldPath := filepath.Join(pl.dir, currentFileName)
	newPath := filepath.Join(pl.dir, rotatedName)
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("replay: rename %s to %s: %w", oldPath, newPath, err)
	}

	pl.file = nil
	pl.zw = nil
	pl.count = 0
	return nil
}

// Replay streams every record for peer with ts >= minTs and
// except != excludePeer, across every file in chronological order
// (rotated files oldest-first, then current), calling fn for each. A
// read error on one file stops that file's replay but not the sweep of
// remaining files, tolerating corruption in any single file.
func (l *Log) Replay(peer string, minTs float64, excludePeer string, fn func(Record) error) error {
	pl, err := l.peerLogFor(peer)
	if err != nil {
		return err
	}

	logger := log.WithComponent("replay-log")
	files, err := orderedLogFiles(pl.dir)
	if err != nil {
		return err
	}

	for _, name := range files {
		path := filepath.Join(pl.dir, name)
		if err := replayFile(path, minTs, excludePeer, fn); err != nil {
			logger.Warn().Str("peer", peer).Str("file", name).Err(err).Msg("stopped replay of file after read error")
		}
	}
	return nil
}

func replayFile(path string, minTs float64, excludePeer string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		if err == io.EOF {
			return nil // empty file, nothing to replay
		}
		return err
	}
	defer zr.Close()

	br := bufio.NewReader(zr)
	for {
		payload, err := cluster.ReadNetstring(br, cluster.DefaultMaxFrameSize)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return err
		}

		if rec.Ts < minTs {
			continue
		}
		if excludePeer != "" && rec.Except == excludePeer {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// orderedLogFiles returns rotated files sorted numerically (oldest
// first), followed by "current" if present.
func orderedLogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var rotated []int64
	hasCurrent := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Name() == currentFileName {
			hasCurrent = true
			continue
		}
		if ts, err := strconv.ParseInt(e.Name(), 10, 64); err == nil {
			rotated = append(rotated, ts)
		}
	}
	sort.Slice(rotated, func(i, j int) bool { return rotated[i] < rotated[j] })

	names := make([]string, 0, len(rotated)+1)
	for _, ts := range rotated {
		names = append(names, strconv.FormatInt(ts, 10))
	}
	if hasCurrent {
		names = append(names, currentFileName)
	}
	return names, nil
}

// Sweep deletes rotated log files whose newest ts is older than the
// minimum local_log_position across all peers, for every peer directory
// under baseDir.
func (l *Log) Sweep(minLogPosition float64) error {
	l.mu.Lock()
	dirs := make([]string, 0, len(l.peers))
	for _, pl := range l.peers {
		dirs = append(dirs, pl.dir)
	}
	l.mu.Unlock()

	for _, dir := range dirs {
		if err := sweepDir(dir, minLogPosition); err != nil {
			return err
		}
	}
	return nil
}

func sweepDir(dir string, minLogPosition float64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() || e.Name() == currentFileName {
			continue
		}
		newestTs, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		if float64(newestTs) <= minLogPosition {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

// SizeBytes reports on-disk bytes used by each peer's log directory,
// satisfying pkg/metrics's ReplayLogSizer.
func (l *Log) SizeBytes() (map[string]int64, error) {
	l.mu.Lock()
	snapshot := make(map[string]string, len(l.peers))
	for peer, pl := range l.peers {
		snapshot[peer] = pl.dir
	}
	l.mu.Unlock()

	sizes := make(map[string]int64, len(snapshot))
	for peer, dir := range snapshot {
		var total int64
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				sizes[peer] = 0
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if info, err := e.Info(); err == nil {
				total += info.Size()
			}
		}
		sizes[peer] = total
	}
	return sizes, nil
}

// Close flushes and closes every peer's open current file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []string
	for peer, pl := range l.peers {
		pl.mu.Lock()
		if pl.file != nil {
			if err := pl.zw.Close(); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", peer, err))
			}
			_ = pl.file.Close()
			pl.file = nil
			pl.zw = nil
		}
		pl.mu.Unlock()
	}
	if len(errs) > 0 {
		return fmt.Errorf("replay: close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
