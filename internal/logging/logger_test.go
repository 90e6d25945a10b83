package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupLoggerLevels(t *testing.T) {
	testCases := []struct {
		name        string
		level       LogLevel
		expectDebug bool
		expectInfo  bool
	}{
		{name: "debug passes everything", level: LevelDebug, expectDebug: true, expectInfo: true},
		{name: "info drops debug", level: LevelInfo, expectDebug: false, expectInfo: true},
		{name: "error drops info", level: LevelError, expectDebug: false, expectInfo: false},
		{name: "unknown level defaults to info", level: LogLevel("verbose"), expectDebug: false, expectInfo: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetupLogger(&buf, tc.level)

			Debug("debug message")
			Info("info message")
			Error("error message")

			output := buf.String()
			assert.Equal(t, tc.expectDebug, bytes.Contains(buf.Bytes(), []byte("debug message")), output)
			assert.Equal(t, tc.expectInfo, bytes.Contains(buf.Bytes(), []byte("info message")), output)
			assert.Contains(t, output, "error message")
		})
	}
}

func TestGetLoggerReturnsConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupLogger(&buf, LevelInfo)

	GetLogger().Info("through the accessor", "key", "value")
	assert.Contains(t, buf.String(), "through the accessor")
	assert.Contains(t, buf.String(), "key=value")
}

func TestMaskSensitive(t *testing.T) {
	assert.Equal(t, "<not set>", MaskSensitive(""))
	assert.Equal(t, "<set>", MaskSensitive("abcd"))
	assert.Equal(t, "abcd...***", MaskSensitive("abcdefgh"))
}
