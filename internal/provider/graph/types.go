// Package graph implements a Provider that mails forwards through the
// Microsoft Graph sendMail API.
package graph

import (
	"encoding/base64"

	"github.com/shineum/mailhook/internal/email"
)

type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject      string           `json:"subject"`
	Body         messageBody      `json:"body"`
	ToRecipients []recipient      `json:"toRecipients"`
	Attachments  []fileAttachment `json:"attachments,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType,omitempty"`
	ContentBytes string `json:"contentBytes"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildSendMailRequest converts a Forward for one recipient into a sendMail
// request body. The body is always sent as plain text.
func buildSendMailRequest(to string, fwd *email.Forward) *sendMailRequest {
	attachments := make([]fileAttachment, 0, len(fwd.Attachments))
	for _, att := range fwd.Attachments {
		attachments = append(attachments, fileAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  att.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject: fwd.MailSubject(),
			Body: messageBody{
				ContentType: "text",
				Content:     fwd.Body,
			},
			ToRecipients: []recipient{{EmailAddress: emailAddress{Address: to}}},
			Attachments:  attachments,
		},
	}
}
