package logsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink resolves and reads the per-script log files that supervised
// children append to. The supervisor opens the files for writing; Sink
// only ever reads them back, so logs survive the instance that wrote
// them.
type Sink struct {
	dir string
}

// Tail is the result of reading the last lines of a script log.
type Tail struct {
	Text       string `json:"logs"`
	TotalLines int    `json:"total_lines"`
	Exists     bool   `json:"-"`
}

func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create logs dir %s: %w", dir, err)
	}
	return &Sink{dir: dir}, nil
}

func (s *Sink) Dir() string { return s.dir }

// Path returns the canonical log path for a script name.
func (s *Sink) Path(name string) string {
	return filepath.Join(s.dir, name+".log")
}

// OpenAppend opens (creating if needed) the log file for name in append
// mode, for handing to a spawned child as stdout/stderr.
func (s *Sink) OpenAppend(name string) (*os.File, error) {
	f, err := os.OpenFile(s.Path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log for %s: %w", name, err)
	}
	return f, nil
}

// TailFile reads path in full and returns the last maxLines lines plus
// the total line count. A missing file is not an error: Exists is false
// and the caller renders a "no logs yet" response. The whole-file read
// makes this O(file size); fine for bounded script logs.
func (s *Sink) TailFile(ctx context.Context, path string, maxLines int) (Tail, error) {
	if err := ctx.Err(); err != nil {
		return Tail{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Tail{Exists: false}, nil
		}
		return Tail{}, fmt.Errorf("read log %s: %w", path, err)
	}
	lines := splitLines(string(b))
	total := len(lines)
	if maxLines < 0 {
		maxLines = 0
	}
	if maxLines < total {
		lines = lines[total-maxLines:]
	}
	return Tail{Text: strings.Join(lines, ""), TotalLines: total, Exists: true}, nil
}

// Tail resolves the canonical log path for name and tails it.
func (s *Sink) Tail(ctx context.Context, name string, maxLines int) (Tail, error) {
	return s.TailFile(ctx, s.Path(name), maxLines)
}

// splitLines splits keeping the trailing newline on each line, matching
// how readlines-style tailing counts a final unterminated line as one.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			lines = append(lines, text)
			return lines
		}
		lines = append(lines, text[:i+1])
		text = text[i+1:]
		if text == "" {
			return lines
		}
	}
}
