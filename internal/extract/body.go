// Package extract produces the text forwarded for a message: its body as
// plain text and a manifest of the attachments saved to disk.
package extract

import (
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/shineum/mailhook/internal/email"
)

// NoBody is forwarded in place of the body when a message has neither a text
// nor an HTML part.
const NoBody = "ERROR: no body content found - please report to admin or mod"

// ManifestSeparator sits between the body and the attachment manifest.
const ManifestSeparator = "\n#####\n"

var (
	// strictPolicy removes every tag and drops script/style content.
	strictPolicy = bluemonday.StrictPolicy()

	// lineBreakTags end a visual line; a newline is kept after each.
	lineBreakTags = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|tr|h[1-6]|blockquote)\s*>`)

	extraBlankLines = regexp.MustCompile(`\n{3,}`)
)

const maxStripPasses = 8

// Body returns the plain-text body verbatim, or the HTML body converted to
// text, or NoBody. It never fails.
func Body(msg *email.Message, logger *slog.Logger) string {
	if msg.TextBody != "" {
		return msg.TextBody
	}
	if msg.HtmlBody != "" {
		return HTMLToText(msg.HtmlBody)
	}

	logger.Error("no body content found",
		"from", msg.From,
		"subject", msg.Subject,
	)
	return NoBody
}

// HTMLToText strips markup and returns the inner text with entities decoded.
// This is tag removal, not layout reconstruction.
func HTMLToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	s = lineBreakTags.ReplaceAllStringFunc(s, func(tag string) string {
		return tag + "\n"
	})
	text := stripTags(s)
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = extraBlankLines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// stripTags removes tags and decodes entities until decoding no longer
// reveals new markup, so escaped tags in the source never come back as tags.
// If that does not settle within maxStripPasses the text is returned with
// its entities still encoded.
func stripTags(s string) string {
	for i := 0; i < maxStripPasses; i++ {
		text := html.UnescapeString(strictPolicy.Sanitize(s))
		if text == s {
			return text
		}
		s = text
	}
	return strictPolicy.Sanitize(s)
}

// Compose joins a body and a manifest with the separator line. The separator
// is present even when the manifest is empty.
func Compose(body, manifest string) string {
	return body + ManifestSeparator + manifest
}
