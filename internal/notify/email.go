package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// defaultEmailFromName is the product label attached to outgoing mail
// when no display name is configured.
const defaultEmailFromName = "LabLink Notifications"

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress   `json:"from"`
	Subject string            `json:"subject"`
	Content []sendGridContent `json:"content"`
}

// sendEmail delivers the payload through the SendGrid v3 mail API.
func sendEmail(ctx context.Context, payload Payload, targets ContactInfo, dc DispatchContext) DispatchResult {
	if targets.Email == "" {
		return DispatchResult{Channel: ChannelEmail, Status: StatusSkipped, Detail: "Recipient missing email address"}
	}
	if dc.EmailAPIKey == "" || dc.EmailFrom == "" {
		return DispatchResult{Channel: ChannelEmail, Status: StatusSkipped, Detail: "Email channel not configured"}
	}

	plain, html := buildEmailBody(payload)

	fromName := dc.EmailFromName
	if fromName == "" {
		fromName = defaultEmailFromName
	}

	reqBody := sendGridRequest{
		From:    sendGridAddress{Email: dc.EmailFrom, Name: fromName},
		Subject: payload.Title,
		Content: []sendGridContent{
			{Type: "text/plain", Value: plain},
			{Type: "text/html", Value: html},
		},
	}
	reqBody.Personalizations = make([]struct {
		To []sendGridAddress `json:"to"`
	}, 1)
	reqBody.Personalizations[0].To = []sendGridAddress{{Email: targets.Email, Name: targets.FullName}}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return DispatchResult{Channel: ChannelEmail, Status: StatusFailed, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendGridURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return DispatchResult{Channel: ChannelEmail, Status: StatusFailed, Detail: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+dc.EmailAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := dc.transport().Do(req)
	if err != nil {
		return DispatchResult{Channel: ChannelEmail, Status: StatusFailed, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if !success(resp.StatusCode) {
		return DispatchResult{Channel: ChannelEmail, Status: StatusFailed, Detail: fmt.Sprintf("SendGrid %d", resp.StatusCode)}
	}

	return DispatchResult{Channel: ChannelEmail, Status: StatusSent}
}

// buildEmailBody renders the payload as both a plain-text body and an
// HTML body. The HTML form escapes the message before converting
// newlines to <br/> tags; the action link becomes a trailing anchor.
func buildEmailBody(payload Payload) (plain, html string) {
	plain = payload.Message
	if payload.ActionLink != "" {
		plain += "\n\nTake action: " + payload.ActionLink
	}

	html = strings.ReplaceAll(escapeHTML(payload.Message), "\n", "<br/>")
	if payload.ActionLink != "" {
		html += fmt.Sprintf(`<p><a href="%s">Take action</a></p>`, payload.ActionLink)
	}
	return plain, html
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeHTML(value string) string {
	return htmlEscaper.Replace(value)
}
