package logfilewriter

import (
	"bytes"
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// _maxPartialLine bounds how much of an unterminated line is held before it is logged anyway.
const _maxPartialLine = 64 * 1024

// New creates a writer that logs each line written to it as a separate entry at the given level.
// It is used to capture human readable output of child processes, such as language server stderr.
// Close logs any trailing partial line.
func New(logger *zap.SugaredLogger, level zapcore.Level) io.WriteCloser {
	return &loggerWriter{logger: logger, level: level}
}

type loggerWriter struct {
	logger *zap.SugaredLogger
	level  zapcore.Level

	mu      sync.Mutex
	partial []byte
}

// Write implements the io.Writer interface by sending complete lines to the given logger.
func (o *loggerWriter) Write(p []byte) (n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	data := p
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := data[:i]
		if len(o.partial) > 0 {
			line = append(o.partial, line...)
			o.partial = o.partial[:0]
		}
		o.emit(line)
		data = data[i+1:]
	}

	o.partial = append(o.partial, data...)
	if len(o.partial) >= _maxPartialLine {
		o.emit(o.partial)
		o.partial = o.partial[:0]
	}
	return len(p), nil
}

// Close flushes a trailing line that was not terminated by a newline.
func (o *loggerWriter) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.partial) > 0 {
		o.emit(o.partial)
		o.partial = nil
	}
	return nil
}

func (o *loggerWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	o.logger.Logw(o.level, string(line))
}
