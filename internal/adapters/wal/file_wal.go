package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

const recordHeaderLen = 12

var errClosed = errors.New("wal closed")

// FileWAL is an append-only log of length-prefixed JSON samples.
type FileWAL struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	highWater ports.WALEntryID
	sizeBytes int64
	closed    bool

	// position of the last successful Sync
	syncedID   ports.WALEntryID
	syncedSize int64
}

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "samples.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	w := &FileWAL{
		path:     path,
		metaPath: filepath.Join(dir, "samples.meta"),
		file:     f,
		writer:   bufio.NewWriterSize(f, 64<<10),
	}
	if err := w.bootstrap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	if w.nextID < w.highWater {
		w.nextID = w.highWater
	}
	w.syncedID, w.syncedSize = w.nextID, w.sizeBytes
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

// scanExisting finds the last complete record and cuts off a torn tail left
// by a crash mid-append.
func (w *FileWAL) scanExisting() error {
	stat, err := os.Stat(w.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil || stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.WALEntryID
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("wal scan header: %w", err)
		}
		id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])

		if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("wal scan body: %w", err)
		}
		offset += recordHeaderLen + int64(length)
		lastID = id
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	// meta format: "<committed>\n<high water id>\n"; the second line is
	// optional and survives compactions that empty the log.
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return nil
	}
	u, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return fmt.Errorf("wal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	if len(fields) > 1 {
		h, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("wal meta parse: %w", err)
		}
		w.highWater = ports.WALEntryID(h)
	}
	return nil
}

// Append buffers the record; call Sync to make it durable.
func (w *FileWAL) Append(s *domain.Sample) (ports.WALEntryID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, errClosed
	}

	id := w.nextID + 1
	s.Seq = uint64(id)

	b, err := json.Marshal(s)
	if err != nil {
		return 0, err
	}

	// entry format: [8 bytes id][4 bytes len][len bytes json]
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := w.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.writer.Write(b); err != nil {
		return 0, err
	}

	w.nextID = id
	w.sizeBytes += int64(len(b) + len(hdr))

	return id, nil
}

// Sync flushes buffered records and fsyncs the log file. When it fails the
// records appended since the last successful Sync are discarded and the file
// is cut back, so a later Sync cannot make them durable.
func (w *FileWAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errClosed
	}
	return w.syncLocked()
}

func (w *FileWAL) syncLocked() error {
	err := w.writer.Flush()
	if err == nil {
		err = w.file.Sync()
	}
	if err != nil {
		return w.discardUnsyncedLocked(err)
	}
	w.syncedID, w.syncedSize = w.nextID, w.sizeBytes
	return nil
}

func (w *FileWAL) discardUnsyncedLocked(cause error) error {
	w.writer.Reset(w.file)
	w.nextID, w.sizeBytes = w.syncedID, w.syncedSize
	if err := os.Truncate(w.path, w.syncedSize); err != nil {
		return errors.Join(cause, fmt.Errorf("wal discard unsynced: %w", err))
	}
	return cause
}

func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, s *domain.Sample) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errClosed
	}

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return iterateFile(w.path, from, fn)
}

func iterateFile(path string, from ports.WALEntryID, fn func(id ports.WALEntryID, s *domain.Sample) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("wal iterate truncated header: %w", err)
			}
			return err
		}
		id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		l := binary.BigEndian.Uint32(hdr[8:12])

		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt WAL: %w", err)
		}
		if id < from {
			continue
		}

		var s domain.Sample
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("corrupt WAL entry %d: %w", id, err)
		}
		s.Seq = uint64(id)
		if err := fn(id, &s); err != nil {
			return err
		}
	}
}

func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upto > w.committed {
		w.committed = upto
	}
	return w.persistMetaLocked()
}

// Rewrite copies every record keep accepts into a fresh log and swaps it in
// place of the current one. It returns how many records were dropped.
func (w *FileWAL) Rewrite(keep func(id ports.WALEntryID, s *domain.Sample) bool) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, errClosed
	}
	if err := w.syncLocked(); err != nil {
		return 0, err
	}

	tmpPath := w.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(tmp)

	var (
		dropped int
		size    int64
	)
	err = iterateFile(w.path, 0, func(id ports.WALEntryID, s *domain.Sample) error {
		if !keep(id, s) {
			dropped++
			return nil
		}
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		var hdr [recordHeaderLen]byte
		binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))
		if _, err := bw.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		size += int64(len(hdr) + len(b))
		return nil
	})
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("wal rewrite: %w", err)
	}
	if dropped == 0 {
		_ = os.Remove(tmpPath)
		return 0, nil
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		return 0, fmt.Errorf("wal rewrite swap: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	_ = w.file.Close()
	w.file = f
	w.writer = bufio.NewWriterSize(f, 64<<10)
	w.sizeBytes = size
	w.syncedID, w.syncedSize = w.nextID, size
	w.highWater = w.nextID
	if err := w.persistMetaLocked(); err != nil {
		return dropped, err
	}
	return dropped, nil
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		Committed:         w.committed,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.syncLocked()
	return errors.Join(err, w.file.Close())
}

func (w *FileWAL) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n%d\n", w.committed, w.highWater))
	return os.WriteFile(w.metaPath, data, 0o644)
}

var _ ports.WAL = (*FileWAL)(nil)
