// Package email defines the message model shared by the mailbox, router and providers.
package email

import "time"

// Message represents an inbound message fetched from the mailbox.
type Message struct {
	UID         uint32
	From        string // bare sender address
	FromDisplay string // sender as written in the header, name included
	To          []string
	Subject     string
	MessageID   string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
}

// Attachment represents a file attached to a message, content already decoded.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Forward is what a provider delivers to a single destination.
type Forward struct {
	// Label is prefixed to the subject in the title when set
	// (for example "Unknown sender").
	Label       string
	Subject     string
	Body        string
	From        string
	Attachments []Attachment
	Timestamp   time.Time
}

// Title returns the subject, preceded by the label on its own line if one is set.
func (f *Forward) Title() string {
	if f.Label == "" {
		return f.Subject
	}
	return f.Label + "\n" + f.Subject
}

// MailSubject returns the title on a single line, for use as an email subject.
func (f *Forward) MailSubject() string {
	if f.Label == "" {
		return f.Subject
	}
	return f.Label + ": " + f.Subject
}
