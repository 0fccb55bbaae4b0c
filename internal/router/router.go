// Package router decides where a message is forwarded based on its sender
// and subject.
package router

import (
	"strings"

	"github.com/shineum/mailhook/internal/config"
	"github.com/shineum/mailhook/internal/email"
)

// UnknownSenderLabel is the label of the fallback route.
const UnknownSenderLabel = "Unknown sender"

// Route is one destination for a message.
type Route struct {
	// Label is the configured subjectShort, or UnknownSenderLabel.
	Label string
	// Destination is a webhook URL or a mailto: address.
	Destination string
	// Matched is false for the fallback route.
	Matched bool
}

type rule struct {
	sender      string
	subject     string
	destination string
}

// Table is an immutable routing table built from the configuration.
type Table struct {
	rules    []rule
	fallback string
}

// New builds a table from the accepted senders in configuration order.
func New(accepts []config.AcceptedSender, fallback string) *Table {
	t := &Table{fallback: fallback}
	for _, sender := range accepts {
		for _, entry := range sender.Data {
			t.rules = append(t.rules, rule{
				sender:      sender.EmailAddress,
				subject:     entry.SubjectShort,
				destination: entry.WebhookURL,
			})
		}
	}
	return t
}

// Route returns every destination whose sender and subject match msg, in
// configuration order. Both comparisons are exact apart from case.
// When nothing matches, the single fallback route is returned.
func (t *Table) Route(msg *email.Message) []Route {
	var routes []Route
	for _, r := range t.rules {
		if strings.EqualFold(r.sender, msg.From) && strings.EqualFold(r.subject, msg.Subject) {
			routes = append(routes, Route{
				Label:       r.subject,
				Destination: r.destination,
				Matched:     true,
			})
		}
	}

	if len(routes) == 0 {
		return []Route{{
			Label:       UnknownSenderLabel,
			Destination: t.fallback,
		}}
	}
	return routes
}

// Len returns the number of sender/subject rules.
func (t *Table) Len() int {
	return len(t.rules)
}
