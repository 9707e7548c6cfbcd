package llm

import (
	"encoding/json"
	"os"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
)

var keyFieldRe = regexp.MustCompile(`(?i)key`)

// DebugLog is an append-only file sink for LLM request/response events.
// One line per event: [LLM][<local ISO timestamp>] <event> <json>, with
// any key-like field redacted. Sink failures never fail the request.
// A nil DebugLog is a valid no-op sink.
type DebugLog struct {
	mu   sync.Mutex
	path string
}

// NewDebugLog creates a file-backed debug sink, or nil when disabled.
func NewDebugLog(enabled bool, path string) *DebugLog {
	if !enabled || path == "" {
		return nil
	}
	return &DebugLog{path: path}
}

// Log appends one redacted event line and mirrors it to the zap debug
// level. Safe on a nil receiver.
func (d *DebugLog) Log(event string, data map[string]any) {
	if d == nil {
		return
	}
	line := "[LLM][" + time.Now().Format("2006-01-02T15:04:05.000-07:00") + "] " + event
	if data != nil {
		if payload, err := json.Marshal(redact(data)); err == nil {
			line += " " + string(payload)
		}
	}

	zap.L().Debug(line)

	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close() //nolint:errcheck
	_, _ = f.WriteString(line + "\n")
}

// redact hides the value of any field whose name looks like a credential.
func redact(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if keyFieldRe.MatchString(k) {
			out[k] = "[hidden]"
		} else {
			out[k] = v
		}
	}
	return out
}
