package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "computesample.log")
	require.NoError(t, Init("debug", path, false))
	t.Cleanup(func() { Close() })

	assert.Equal(t, logrus.DebugLevel, Get().GetLevel())
	WithFields(logrus.Fields{"device": "abc123"}).Info("device opened")
	Debugf("tick %d", 42)
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "device opened")
	assert.Contains(t, string(data), "device=abc123")
	assert.Contains(t, string(data), "tick 42")
}

func TestInitBadLevel(t *testing.T) {
	require.NoError(t, Init("chatty", "", false))
	assert.Equal(t, logrus.InfoLevel, Get().GetLevel())
}
