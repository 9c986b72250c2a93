package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"go.uber.org/zap"
)

// maxLineSize bounds a single JSONL record
const maxLineSize = 16 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// JSONLSource reads <dir>/<table>.jsonl files, one JSON object per line
type JSONLSource struct {
	dir    string
	logger *zap.Logger
}

// NewJSONLSource creates a file-backed source
func NewJSONLSource(dir string) *JSONLSource {
	return &JSONLSource{dir: dir, logger: logger.Component(nil, "source.jsonl")}
}

// ReadTable implements Source. Malformed lines are logged and skipped.
func (s *JSONLSource) ReadTable(ctx context.Context, table string, batchSize int, fn BatchFunc) error {
	path := filepath.Join(s.dir, table+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return apperrors.NewSourceReadFailed(table, err)
	}
	defer f.Close()

	b := newBatcher(batchSize, fn)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if line == 1 {
			raw = bytes.TrimPrefix(raw, utf8BOM)
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var record map[string]any
		if err := dec.Decode(&record); err != nil {
			s.logger.Warn("Skipping malformed JSONL line",
				zap.String("table", table),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		if err := b.add(RowFromMap(record)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return apperrors.NewSourceReadFailed(table, err)
	}
	return b.flush()
}

// Close implements Source
func (s *JSONLSource) Close() error {
	return nil
}
