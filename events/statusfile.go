package events

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StatusFileWriter mirrors the rendered checklist into a hook file so
// external tooling can read the current workflow position without
// invoking the tool. It subscribes to status_rendered events carrying a
// "rendered" string.
type StatusFileWriter struct {
	Path string
	Now  func() time.Time
}

// NewStatusFileWriter creates a writer for the given hook file path.
func NewStatusFileWriter(path string) *StatusFileWriter {
	return &StatusFileWriter{Path: path, Now: time.Now}
}

// Handle implements Handler.
func (w *StatusFileWriter) Handle(ctx context.Context, event Event) error {
	rendered, _ := event.Data["rendered"].(string)
	if rendered == "" {
		return nil
	}

	content := fmt.Sprintf("> **[CURRENT WORKFLOW STATE]**\n> Updated at: %s\n>\n```markdown\n%s\n```\n",
		w.Now().Format("2006-01-02 15:04:05"), rendered)

	if dir := filepath.Dir(w.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(w.Path, []byte(content), 0o644)
}
