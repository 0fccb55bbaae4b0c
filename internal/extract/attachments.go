package extract

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/shineum/mailhook/internal/email"
)

// Saver writes attachments below BaseDir, one directory per route label.
type Saver struct {
	BaseDir string
	// DryRun lists attachments in the manifest without writing them.
	DryRun bool
	Logger *slog.Logger
}

// Save writes every attachment of msg to <BaseDir>/<label>/<filename> and
// returns the manifest, one line per saved file. A file with the same name
// under the same label is overwritten. Attachments that cannot be written
// are logged and left out of the manifest.
func (s *Saver) Save(msg *email.Message, label string) string {
	if len(msg.Attachments) == 0 {
		return ""
	}

	dir := filepath.Join(s.BaseDir, SafeName(label, "unlabeled"))

	var manifest strings.Builder
	for i, att := range msg.Attachments {
		name := SafeName(att.Filename, fmt.Sprintf("attachment-%d", i+1))

		if !s.DryRun {
			if err := writeAttachment(dir, name, att.Content); err != nil {
				s.Logger.Error("failed to save attachment",
					"label", label,
					"filename", name,
					"error", err,
				)
				continue
			}
			s.Logger.Debug("attachment saved",
				"path", filepath.Join(dir, name),
				"size", len(att.Content),
			)
		}

		fmt.Fprintf(&manifest, "Attachment on hold: %s\n", name)
	}

	return manifest.String()
}

func writeAttachment(dir, name string, content []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// SafeName makes name usable as a single path element: separators, control
// characters and characters reserved on common filesystems become '_'.
// Empty names and dot names are replaced with fallback.
func SafeName(name, fallback string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case strings.ContainsRune(`:*?"<>|`, r):
			return '_'
		case unicode.IsControl(r):
			return '_'
		}
		return r
	}, strings.TrimSpace(name))

	if name == "" || strings.Trim(name, ".") == "" {
		return fallback
	}
	return name
}
