// Package parser turns a raw RFC 5322 message fetched from the mailbox into
// an email.Message, decoding transfer encodings, charsets and MIME words.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"

	"github.com/shineum/mailhook/internal/email"
)

func init() {
	// Register charsets commonly produced by older mail clients
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Parse parses a raw message. The first text/plain and text/html inline
// parts become the bodies; every attachment part is read fully. Parts that
// cannot be read are logged and skipped.
func Parse(raw []byte) (*email.Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if err != nil {
		slog.Warn("message uses an unknown charset, body left undecoded", "error", err)
	}
	defer mr.Close()

	result := &email.Message{}
	readHeader(&mr.Header, result)

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && message.IsUnknownEncoding(err) {
			slog.Warn("skipping part with unknown transfer encoding", "error", err)
			continue
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}
		if err != nil {
			slog.Warn("part uses an unknown charset, left undecoded", "error", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := h.ContentType()
			if mediaType == "" {
				mediaType = "text/plain"
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				slog.Warn("failed to read inline part",
					"content_type", mediaType,
					"error", err,
				)
				continue
			}

			switch strings.ToLower(mediaType) {
			case "text/plain":
				if result.TextBody == "" {
					result.TextBody = string(body)
				}
			case "text/html":
				if result.HtmlBody == "" {
					result.HtmlBody = string(body)
				}
			default:
				slog.Debug("ignoring inline part", "content_type", mediaType)
			}

		case *mail.AttachmentHeader:
			mediaType, params, _ := h.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				slog.Warn("failed to read attachment",
					"content_type", mediaType,
					"error", err,
				)
				continue
			}
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename:    attachmentFilename(h, mediaType, params),
				ContentType: mediaType,
				Content:     content,
			})
		}
	}

	return result, nil
}

// readHeader copies the envelope fields the router and providers need.
func readHeader(h *mail.Header, result *email.Message) {
	if subject, err := h.Subject(); err == nil {
		result.Subject = subject
	} else {
		result.Subject = h.Get("Subject")
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		result.From = from[0].Address
	} else {
		result.From = strings.Trim(strings.TrimSpace(h.Get("From")), "<>")
	}
	if display, err := h.Text("From"); err == nil {
		result.FromDisplay = display
	} else {
		result.FromDisplay = h.Get("From")
	}

	if to, err := h.AddressList("To"); err == nil {
		for _, addr := range to {
			result.To = append(result.To, addr.Address)
		}
	}

	if id, err := h.MessageID(); err == nil {
		result.MessageID = id
	}
}

// attachmentFilename returns the declared filename, falling back to a name
// derived from the media type.
func attachmentFilename(h *mail.AttachmentHeader, mediaType string, params map[string]string) string {
	if fn, err := h.Filename(); err == nil && fn != "" {
		return fn
	}
	if name := params["name"]; name != "" {
		if decoded, err := new(mime.WordDecoder).DecodeHeader(name); err == nil {
			return decoded
		}
		return name
	}
	if parts := strings.SplitN(mediaType, "/", 2); len(parts) == 2 && parts[1] != "" {
		return "attachment." + parts[1]
	}
	return "attachment"
}
