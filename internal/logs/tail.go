package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CurrentName is the pointer to the running daemon's log file.
const CurrentName = "splicer.log"

// CurrentPath returns the log pointer inside logDir.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, CurrentName)
}

const maxLine = 1024 * 1024

// Last returns up to n trailing lines of path and the offset just past
// them. A missing file yields no lines and offset zero.
func Last(path string, n int) ([]string, int64, error) {
	lines, offset, err := ReadFrom(path, 0)
	if err != nil {
		return nil, 0, err
	}
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, offset, nil
}

// ReadFrom returns the complete lines written after offset and the offset
// of the first unread byte.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, offset, fmt.Errorf("log path %q is a directory", path)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		line, err := reader.ReadSlice('\n')
		if err == nil {
			offset += int64(len(line))
			lines = append(lines, string(trimEOL(line)))
			continue
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			// Oversized record: keep reading until its newline.
			rest, restErr := readLongLine(reader, line)
			if restErr != nil {
				return lines, offset, nil
			}
			offset += int64(len(rest))
			lines = append(lines, string(trimEOL(rest)))
			continue
		}
		if errors.Is(err, io.EOF) {
			return lines, offset, nil
		}
		return lines, offset, fmt.Errorf("read log file: %w", err)
	}
}

func readLongLine(reader *bufio.Reader, head []byte) ([]byte, error) {
	buf := append([]byte(nil), head...)
	for len(buf) < maxLine {
		chunk, err := reader.ReadSlice('\n')
		buf = append(buf, chunk...)
		if err == nil {
			return buf, nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("log line exceeds %d bytes", maxLine)
}

func trimEOL(line []byte) []byte {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// Follow polls path every interval and passes new lines to emit until ctx
// is done.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		lines, next, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
		offset = next
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
