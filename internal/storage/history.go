// Package storage keeps the conversation history as an append-only
// newline-delimited JSON file.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/domain"
)

const maxLineSize = 1 << 20

// History is the NDJSON log. Records are read back filtered and ordered by
// their timestamp string, which assumes ISO 8601 timestamps.
type History struct {
	path string
	mu   sync.RWMutex
}

// OpenHistory prepares path for appending; the file is created on first write.
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &History{path: path}, nil
}

func (h *History) Append(rec domain.HistoryRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Query returns the records matching q sorted by timestamp. Unreadable lines are skipped.
func (h *History) Query(q domain.HistoryQuery) ([]domain.HistoryRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, err := os.Open(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.HistoryRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	out := []domain.HistoryRecord{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.HistoryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Warn().Err(err).Str("module", "storage.history").Msg("skipping bad record")
			continue
		}
		if q.Matches(rec) {
			out = append(out, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
