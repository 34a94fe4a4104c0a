package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	defer Init(Options{})

	var buf bytes.Buffer
	Init(Options{Debug: true, DisableColor: true, Output: &buf})
	require.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	logrus.WithField("src", "a.h5").Debug("converted")
	require.Contains(t, buf.String(), "level=debug")
	require.Contains(t, buf.String(), `msg=converted src=a.h5`)

	buf.Reset()
	Init(Options{DisableColor: true, Output: &buf})
	require.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	logrus.Debug("hidden")
	require.Empty(t, buf.String())
}
