package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDebugLogDisabled(t *testing.T) {
	assert.Nil(t, NewDebugLog(false, "x.log"))
	assert.Nil(t, NewDebugLog(true, ""))

	// Nil sink is a no-op
	var d *DebugLog
	d.Log("request:init", map[string]any{"model": "m"})
}

func TestDebugLogWritesAndRedacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.log")
	d := NewDebugLog(true, path)
	require.NotNil(t, d)

	d.Log("request:init", map[string]any{"apiKey": "secret", "model": "m"})

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(raw)
	assert.Contains(t, line, "[LLM][")
	assert.Contains(t, line, "request:init")
	assert.Contains(t, line, `"apiKey":"[hidden]"`)
	assert.Contains(t, line, `"model":"m"`)
	assert.NotContains(t, line, "secret")
}
