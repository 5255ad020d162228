package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesSecureLogFile(t *testing.T) {
	dir := t.TempDir()
	logger := logrus.New()

	closer, err := Setup(logger, dir, false)
	require.NoError(t, err)

	logger.Info("profile saved")
	logger.Debug("hidden at info level")
	require.NoError(t, closer.Close())

	path := filepath.Join(dir, "logs", logFileName)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "profile saved")
	assert.NotContains(t, string(raw), "hidden at info level")
}

func TestSetup_DebugLevel(t *testing.T) {
	logger := logrus.New()
	closer, err := Setup(logger, t.TempDir(), true)
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestWriterHook_Levels(t *testing.T) {
	var buf bytes.Buffer
	hook := newWriterHook(&buf, logrus.WarnLevel)

	assert.ElementsMatch(t,
		[]logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel},
		hook.Levels())

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	logger.AddHook(hook)
	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}
