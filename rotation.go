// rotation.go: file open, clean rotation, and background cleanup/compression
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/rtslog/internal/wire"
)

// getRetryConfig returns the effective retry parameters, already defaulted
// by Config.applyDefaults.
func (el *EventLog) getRetryConfig() (int, time.Duration, os.FileMode) {
	return el.cfg.RetryCount, el.cfg.RetryDelay, el.cfg.FileMode
}

// initFile opens (creating if necessary) the output file for a fresh
// eventlog stream. Called from Init; performRotation opens its new file
// through closeAndRotateFile instead.
func (el *EventLog) initFile() error {
	retryCount, retryDelay, fileMode := el.getRetryConfig()

	sanitizedPath, err := el.validateAndSanitizePath()
	if err != nil {
		return err
	}

	if err := el.createLogDirectory(sanitizedPath, retryCount, retryDelay); err != nil {
		return err
	}

	file, err := el.openLogFile(sanitizedPath, fileMode, retryCount, retryDelay)
	if err != nil {
		return err
	}

	el.path = sanitizedPath
	el.file.Store(file)
	el.fileCreated.Store(time.Now().Unix())
	return nil
}

func (el *EventLog) validateAndSanitizePath() (string, error) {
	raw := el.cfg.outputPath()
	if err := ValidatePathLength(raw); err != nil {
		return "", fmt.Errorf("invalid eventlog path: %v", err)
	}
	dir := filepath.Dir(raw)
	base := filepath.Base(raw)
	return filepath.Join(dir, SanitizeFilename(base)), nil
}

func (el *EventLog) createLogDirectory(sanitizedPath string, retryCount int, retryDelay time.Duration) error {
	dir := filepath.Dir(sanitizedPath)
	if dir == "." {
		return nil
	}
	err := RetryFileOperation(func() error {
		return os.MkdirAll(dir, 0750)
	}, retryCount, retryDelay)
	if err != nil {
		return fmt.Errorf("failed to create eventlog directory %q: %v", dir, err)
	}
	return nil
}

func (el *EventLog) openLogFile(sanitizedPath string, fileMode os.FileMode, retryCount int, retryDelay time.Duration) (*os.File, error) {
	var file *os.File
	err := RetryFileOperation(func() error {
		var err error
		file, err = os.OpenFile(sanitizedPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode) // #nosec G304 -- sanitizedPath derives from Config.ProgName, not external input
		return err
	}, retryCount, retryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to open eventlog file %q: %v", sanitizedPath, err)
	}
	return file, nil
}

// shouldRotate reports whether the cumulative flushed-byte count or the
// current file's age has crossed the configured rotation threshold.
func (el *EventLog) shouldRotate(flushedTotal uint64) bool {
	if el.maxSizeBytes == 0 && el.cfg.MaxSizeStr != "" {
		if size, err := ParseSize(el.cfg.MaxSizeStr); err == nil {
			el.maxSizeBytes = size
		}
	}
	if el.maxSizeBytes > 0 && flushedTotal >= uint64(el.maxSizeBytes) {
		return true
	}

	if el.cfg.MaxAgeStr != "" {
		if maxAge, err := ParseDuration(el.cfg.MaxAgeStr); err == nil && maxAge > 0 {
			created := el.fileCreated.Load()
			if created > 0 && time.Since(time.Unix(created, 0)) >= maxAge {
				return true
			}
		}
	}
	return false
}

// triggerRotation performs rotation under a CAS guard so only one
// flushing capability actually rotates; others simply keep writing to the
// file that's already being rotated out from under them safely (the file
// handle they hold stays valid until they next flush).
func (el *EventLog) triggerRotation() {
	if !el.rotationFlag.CompareAndSwap(false, true) {
		return
	}
	defer el.rotationFlag.Store(false)

	if err := el.performRotation(); err != nil {
		el.reportError("rotation", err)
	}
}

// Rotate manually forces a clean rotation regardless of size/age
// thresholds: flush every buffer (closing a complete, independently
// readable stream in the old file), rename it, open a new file and replay
// the header-emission sequence so the new file is self-describing on its
// own.
func (el *EventLog) Rotate() error {
	el.triggerRotation()
	return nil
}

// performRotation closes out every buffer's block without reopening it
// (so the old file ends as a complete, independently readable stream),
// appends DATA_END, renames the file, opens a fresh one, and re-emits the
// header and initial blocks so the new file stands on its own.
func (el *EventLog) performRotation() error {
	currentFile := el.file.Load()
	if currentFile == nil {
		return errNoCurrentFile
	}

	el.capMu.RLock()
	bufs := make([]*EventsBuf, len(el.perCap))
	copy(bufs, el.perCap)
	el.capMu.RUnlock()

	for _, b := range bufs {
		if err := el.flush(b, false); err != nil {
			return err
		}
	}

	el.sharedMu.Lock()
	if err := el.flush(el.shared, false); err != nil {
		el.sharedMu.Unlock()
		return err
	}
	el.shared.enc.PutUint16(wire.DataEnd)
	err := el.writeRaw(el.shared)
	el.sharedMu.Unlock()
	if err != nil {
		return err
	}

	backupName := el.generateBackupName()
	retryCount, retryDelay, fileMode := el.getRetryConfig()

	if err := el.closeAndRotateFile(currentFile, backupName, retryCount, retryDelay, fileMode); err != nil {
		return err
	}

	el.updateRotationState()

	if err := el.writeHeader(); err != nil {
		return err
	}
	now := el.cfg.Clock.Now()
	el.shared.openBlock(now)
	el.capMu.RLock()
	for _, b := range el.perCap {
		b.openBlock(now)
	}
	el.capMu.RUnlock()

	el.scheduleBackgroundTasks(backupName)
	return nil
}

func (el *EventLog) generateBackupName() string {
	now := time.Now()
	if !el.cfg.LocalTime {
		now = now.UTC()
	}
	return fmt.Sprintf("%s.%s", el.path, now.Format("2006-01-02-15-04-05"))
}

func (el *EventLog) closeAndRotateFile(currentFile *os.File, backupName string, retryCount int, retryDelay time.Duration, fileMode os.FileMode) error {
	err := RetryFileOperation(func() error {
		return currentFile.Close()
	}, retryCount, retryDelay)
	if err != nil {
		return fmt.Errorf("failed to close current eventlog file: %v", err)
	}

	err = RetryFileOperation(func() error {
		return os.Rename(el.path, backupName)
	}, retryCount, retryDelay)
	if err != nil {
		return fmt.Errorf("failed to rename eventlog file: %v", err)
	}

	var newFile *os.File
	err = RetryFileOperation(func() error {
		var err error
		newFile, err = os.OpenFile(el.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode) // #nosec G304 -- el.path is derived from Config.ProgName, not external input
		return err
	}, retryCount, retryDelay)
	if err != nil {
		return fmt.Errorf("failed to create new eventlog file: %v", err)
	}

	el.file.Store(newFile)
	return nil
}

func (el *EventLog) updateRotationState() {
	el.flushedTotal.Store(0)
	el.fileCreated.Store(time.Now().Unix())
	el.rotationSeq.Add(1)
}

func (el *EventLog) scheduleBackgroundTasks(backupName string) {
	if el.bgWorkers.Load() == nil {
		el.bgWorkers.CompareAndSwap(nil, newBackgroundWorkers(2))
	}
	workers := el.bgWorkers.Load()
	if workers == nil {
		return
	}

	if el.cfg.MaxBackups > 0 || el.cfg.MaxFileAge > 0 {
		el.safeSubmitTask(BackgroundTask{TaskType: "cleanup", Logger: el})
	}
	if el.cfg.Checksum {
		el.safeSubmitTask(BackgroundTask{TaskType: "checksum", FilePath: backupName, Logger: el})
	}
	if el.cfg.Compress {
		el.safeSubmitTask(BackgroundTask{TaskType: "compress", FilePath: backupName, Logger: el})
	}
}

func (el *EventLog) safeSubmitTask(task BackgroundTask) {
	workers := el.bgWorkers.Load()
	if workers == nil {
		return
	}
	select {
	case <-workers.ctx.Done():
		return
	default:
	}
	workers.activeTasks.Add(1)
	select {
	case workers.taskQueue <- task:
	case <-workers.ctx.Done():
		workers.activeTasks.Add(-1)
	default:
		workers.activeTasks.Add(-1)
	}
}

type fileInfo struct {
	name    string
	modTime time.Time
}

// cleanupOldFiles removes rotated-away files beyond MaxBackups and/or
// older than MaxFileAge.
func (el *EventLog) cleanupOldFiles() {
	pattern := el.path + ".*"
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	var files []fileInfo
	now := time.Now()
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if el.cfg.MaxFileAge > 0 {
			age := now.Sub(info.ModTime())
			if age > el.cfg.MaxFileAge {
				if err := os.Remove(match); err != nil {
					el.reportError("age_cleanup", fmt.Errorf("failed to remove old file %s (age %v): %v", match, age, err))
				}
				continue
			}
		}
		files = append(files, fileInfo{name: match, modTime: info.ModTime()})
	}

	if el.cfg.MaxBackups <= 0 || len(files) <= el.cfg.MaxBackups {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	toRemove := len(files) - el.cfg.MaxBackups
	for i := 0; i < toRemove; i++ {
		if err := os.Remove(files[i].name); err != nil {
			el.reportError("count_cleanup", fmt.Errorf("failed to remove excess backup %s: %v", files[i].name, err))
		}
	}
}

// validateRotatedStream confirms filename is a complete, independently
// readable eventlog stream by checking that it ends in a DATA_END
// sentinel — the tag performRotation writes once every buffer's block has
// been closed without reopening. A file that doesn't end this way means
// rotation was interrupted partway (process killed mid-performRotation,
// disk full on the closing writeRaw); compressing or checksumming it would
// produce a sidecar for a stream a later reader can't trust.
func (el *EventLog) validateRotatedStream(filename string) error {
	f, err := os.Open(filename) // #nosec G304 -- filename is an internally generated backup path
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < 2 {
		return fmt.Errorf("rotated stream %q is shorter than a DATA_END sentinel", filename)
	}

	tail := make([]byte, 2)
	if _, err := f.ReadAt(tail, info.Size()-2); err != nil {
		return fmt.Errorf("reading DATA_END sentinel from %q: %w", filename, err)
	}
	if got := wire.NewDecoder(tail).Uint16(); got != wire.DataEnd {
		return fmt.Errorf("rotated stream %q does not end in DATA_END (got %#04x)", filename, got)
	}
	return nil
}

// compressFile gzips a rotated-away file with crash consistency: it
// compresses into a .tmp file and only renames over the final name once
// compression has fully succeeded.
func (el *EventLog) compressFile(filename string) {
	if err := el.validateRotatedStream(filename); err != nil {
		el.reportError("compress_validate", err)
		return
	}

	var source *os.File
	err := RetryFileOperation(func() error {
		var err error
		source, err = os.Open(filename) // #nosec G304 -- filename is an internally generated backup path
		return err
	}, 3, 10*time.Millisecond)
	if err != nil {
		el.reportError("compress_open", err)
		return
	}
	defer source.Close()

	compressedName := filename + ".gz"
	tempName := compressedName + ".tmp"

	target, err := os.Create(tempName) // #nosec G304 -- tempName is internally generated
	if err != nil {
		el.reportError("compress_create", err)
		return
	}
	defer target.Close()

	gzWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzWriter, source); err != nil {
		_ = target.Close()
		_ = os.Remove(tempName)
		el.reportError("compress_copy", err)
		return
	}
	if err := gzWriter.Close(); err != nil {
		_ = target.Close()
		_ = os.Remove(tempName)
		el.reportError("compress_finalize", err)
		return
	}
	if err := target.Close(); err != nil {
		_ = os.Remove(tempName)
		el.reportError("compress_close", err)
		return
	}
	if err := os.Rename(tempName, compressedName); err != nil {
		_ = os.Remove(tempName)
		el.reportError("compress_rename", err)
		return
	}
	if err := os.Remove(filename); err != nil {
		el.reportError("compress_cleanup", err)
	}
}

// generateChecksum writes a SHA-256 sidecar file for a rotated-away file
// (or its .gz, if compression already ran first). The raw (non-.gz) case
// is validated the same way compressFile validates it, since a checksum of
// a truncated stream is as misleading as a compressed copy of one.
func (el *EventLog) generateChecksum(filename string) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		if gz := filename + ".gz"; !strings.HasSuffix(filename, ".gz") {
			if _, err := os.Stat(gz); err == nil {
				filename = gz
			} else {
				el.reportError("checksum_missing", fmt.Errorf("file not found for checksum: %s", filename))
				return
			}
		}
	} else if err != nil {
		el.reportError("checksum_stat", err)
		return
	} else if !strings.HasSuffix(filename, ".gz") {
		if err := el.validateRotatedStream(filename); err != nil {
			el.reportError("checksum_validate", err)
			return
		}
	}

	file, err := os.Open(filename) // #nosec G304 -- filename is an internally generated backup path
	if err != nil {
		el.reportError("checksum_open", err)
		return
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		el.reportError("checksum_read", err)
		return
	}

	checksumFile := filename + ".sha256"
	content := fmt.Sprintf("%x  %s\n", hash.Sum(nil), filepath.Base(filename))
	if err := os.WriteFile(checksumFile, []byte(content), 0600); err != nil {
		el.reportError("checksum_write", err)
	}
}

// FileSystem abstracts the handful of os-package calls a rotation path
// needs. EventLog's own rotation and background tasks call the os package
// directly and do not consult a FileSystem.
type FileSystem interface {
	Create(name string) (*os.File, error)
	Open(name string) (*os.File, error)
	Rename(oldname, newname string) error
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
}

// DefaultFileSystem implements FileSystem using the os package.
type DefaultFileSystem struct{}

func (DefaultFileSystem) Create(name string) (*os.File, error) { return os.Create(name) } // #nosec G304
func (DefaultFileSystem) Open(name string) (*os.File, error)   { return os.Open(name) }   // #nosec G304
func (DefaultFileSystem) Rename(oldname, newname string) error { return os.Rename(oldname, newname) }
func (DefaultFileSystem) Remove(name string) error              { return os.Remove(name) }
func (DefaultFileSystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// BackgroundTask is one unit of rotation follow-up work.
type BackgroundTask struct {
	TaskType string // "cleanup", "compress", or "checksum"
	FilePath string
	Logger   *EventLog
}

// BackgroundWorkers runs a small fixed pool of goroutines draining a
// queue of rotation follow-up tasks, so Rotate/triggerRotation never
// blocks the post path on compression or checksum I/O.
type BackgroundWorkers struct {
	ctx         context.Context
	cancel      context.CancelFunc
	taskQueue   chan BackgroundTask
	wg          sync.WaitGroup
	activeTasks atomic.Int64
	stopOnce    sync.Once
}

func newBackgroundWorkers(numWorkers int) *BackgroundWorkers {
	ctx, cancel := context.WithCancel(context.Background())
	bg := &BackgroundWorkers{
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan BackgroundTask, 100),
	}
	for i := 0; i < numWorkers; i++ {
		bg.wg.Add(1)
		go bg.worker()
	}
	return bg
}

func (bg *BackgroundWorkers) worker() {
	defer bg.wg.Done()
	for {
		select {
		case <-bg.ctx.Done():
			return
		case task := <-bg.taskQueue:
			bg.processTask(task)
		}
	}
}

func (bg *BackgroundWorkers) processTask(task BackgroundTask) {
	defer bg.activeTasks.Add(-1)

	switch task.TaskType {
	case "cleanup":
		task.Logger.cleanupOldFiles()
	case "compress":
		task.Logger.compressFile(task.FilePath)
	case "checksum":
		task.Logger.generateChecksum(task.FilePath)
	}
}

func (bg *BackgroundWorkers) stop() {
	bg.stopOnce.Do(func() {
		bg.cancel()
		close(bg.taskQueue)
		bg.wg.Wait()
	})
}

func (bg *BackgroundWorkers) waitForCompletion() {
	for bg.activeTasks.Load() > 0 && bg.ctx.Err() == nil {
		time.Sleep(1 * time.Millisecond)
	}
}
