package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ptnguyen/devsentry/internal/model"
)

// JSONLSource reads raw events from a JSON-lines file, one event object per
// line, in file order. Event log exports are commonly written newest-first;
// the summarizer reorders chronologically either way.
//
// Blank lines are skipped silently. Malformed lines are skipped with a
// warning; a corrupt line in an export must not abort the whole scan.
type JSONLSource struct {
	f       *os.File
	scanner *bufio.Scanner
	logger  *zap.Logger
	path    string
	line    int
}

// OpenJSONL opens a JSON-lines event file for scanning.
func OpenJSONL(path string, logger *zap.Logger) (*JSONLSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event log %s: %w", path, err)
	}

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 8*1024*1024)

	return &JSONLSource{f: f, scanner: s, logger: logger, path: path}, nil
}

// Next returns the next parseable event, io.EOF at end of file.
func (s *JSONLSource) Next(ctx context.Context) (model.RawEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.RawEvent{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return model.RawEvent{}, fmt.Errorf("reading %s: %w", s.path, err)
			}
			return model.RawEvent{}, io.EOF
		}
		s.line++
		if strings.TrimSpace(s.scanner.Text()) == "" {
			continue
		}

		var ev model.RawEvent
		if err := json.Unmarshal(s.scanner.Bytes(), &ev); err != nil {
			s.logger.Warn("skipping malformed event line",
				zap.String("path", s.path),
				zap.Int("line", s.line),
				zap.Error(err))
			continue
		}
		return ev, nil
	}
}

// Close releases the underlying file.
func (s *JSONLSource) Close() error {
	return s.f.Close()
}
