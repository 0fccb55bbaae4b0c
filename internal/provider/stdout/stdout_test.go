package stdout

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shineum/mailhook/internal/email"
)

func TestSend_BasicForward(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	fwd := &email.Forward{
		From:    "bot@svc.com",
		Subject: "Report",
		Body:    "OK\n#####\n",
	}

	if err := p.Send(context.Background(), "https://hooks.example.com/report", fwd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Destination: https://hooks.example.com/report") {
		t.Error("output missing destination")
	}
	if !strings.Contains(output, "From: bot@svc.com") {
		t.Error("output missing From line")
	}
	if !strings.Contains(output, "Title: Report\n") {
		t.Error("output missing title")
	}
	if !strings.Contains(output, "OK\n#####\n") {
		t.Error("output missing body text")
	}
	if strings.Contains(output, "Attachments:") {
		t.Error("output should not contain Attachments line when there are none")
	}
	if !strings.HasPrefix(output, "========================================\n") {
		t.Error("output should start with separator line")
	}
	if !strings.HasSuffix(output, "========================================\n") {
		t.Error("output should end with separator line")
	}
}

func TestSend_LabelledTitleOnOneLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	fwd := &email.Forward{Label: "Unknown sender", Subject: "Hi", Body: "hello"}
	if err := p.Send(context.Background(), "https://hooks.example.com/default", fwd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), "Title: Unknown sender / Hi\n") {
		t.Errorf("output missing labelled title, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "From:") {
		t.Error("output should not contain From line when From is empty")
	}
}

func TestSend_WithAttachments(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	fwd := &email.Forward{
		Subject: "Monthly Report",
		Body:    "see attached",
		Attachments: []email.Attachment{
			{
				Filename:    "report.pdf",
				ContentType: "application/pdf",
				Content:     make([]byte, 1258291), // ~1.2 MB
			},
			{
				Filename:    "summary.xlsx",
				ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
				Content:     make([]byte, 46080), // ~45 KB
			},
		},
	}

	if err := p.Send(context.Background(), "mailto:ops@example.com", fwd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Attachments: report.pdf (1.2 MB), summary.xlsx (45.0 KB)") {
		t.Errorf("output missing attachment list, got %q", output)
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	p := New()
	if p.Name() != "stdout" {
		t.Errorf("Name: got %q, want %q", p.Name(), "stdout")
	}
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		bytes int
		want  string
	}{
		{name: "zero bytes", bytes: 0, want: "0 B"},
		{name: "small bytes", bytes: 512, want: "512 B"},
		{name: "kilobytes", bytes: 46080, want: "45.0 KB"},
		{name: "megabytes", bytes: 1258291, want: "1.2 MB"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := formatSize(tt.bytes)
			if got != tt.want {
				t.Errorf("formatSize(%d): got %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}
