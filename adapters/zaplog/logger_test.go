package zaplog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/coregx/chatrelay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ chatrelay.Logger = (*Logger)(nil)

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("chatrelay", "info", buf)

	log.Infof("Channel activated: id=%s", "c1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Channel activated: id=c1", entry["msg"])
	assert.Equal(t, "chatrelay", entry["service"])
	assert.Contains(t, entry["caller"], "logger_test.go")
}

func TestLogger_LevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("chatrelay", "warn", buf)

	log.Debugf("hidden")
	log.Infof("hidden")
	assert.Zero(t, buf.Len())

	log.Errorf("shown: %d", 1)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("chatrelay", "verbose", buf)

	log.Debugf("hidden")
	assert.Zero(t, buf.Len())
	log.Info("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
