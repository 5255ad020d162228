// Package logging configures the process-wide logrus logger: a file sink
// under the data directory plus a stderr mirror for warnings.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const logFileName = "rmcli.log"

// Setup points logger at <dataDir>/logs/rmcli.log and mirrors warnings (or
// everything, with debug) to stderr. The returned closer releases the file.
func Setup(logger *logrus.Logger, dataDir string, debug bool) (io.Closer, error) {
	level := logrus.InfoLevel
	stderrLevel := logrus.WarnLevel
	if debug {
		level = logrus.DebugLevel
		stderrLevel = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.AddHook(newWriterHook(os.Stderr, stderrLevel))

	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		logger.SetOutput(io.Discard)
		return nopCloser{}, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logger.SetOutput(io.Discard)
		return nopCloser{}, fmt.Errorf("opening log file: %w", err)
	}
	logger.SetOutput(f)
	return f, nil
}

// writerHook copies entries at or above a level to a writer.
type writerHook struct {
	out       io.Writer
	levels    []logrus.Level
	formatter logrus.Formatter
}

func newWriterHook(out io.Writer, min logrus.Level) *writerHook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= min {
			levels = append(levels, l)
		}
	}
	return &writerHook{
		out:    out,
		levels: levels,
		formatter: &logrus.TextFormatter{
			DisableTimestamp: true,
		},
	}
}

func (h *writerHook) Levels() []logrus.Level {
	return h.levels
}

func (h *writerHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.out.Write(line)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
