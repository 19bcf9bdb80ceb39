package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// smsBodyCap is the maximum length of the "<title>: <message>" body,
// applied before the action link is appended. The appended link can
// therefore push the final body past the cap; that matches the upstream
// Twilio integration this adapter replaces.
const smsBodyCap = 1500

// sendSMS delivers the payload through the Twilio Messages API as
// URL-encoded form data with HTTP basic auth.
func sendSMS(ctx context.Context, payload Payload, targets ContactInfo, dc DispatchContext) DispatchResult {
	if targets.Phone == "" {
		return DispatchResult{Channel: ChannelSMS, Status: StatusSkipped, Detail: "Recipient missing phone number"}
	}
	if dc.SMSAccountSID == "" || dc.SMSAuthToken == "" || dc.SMSFromNumber == "" {
		return DispatchResult{Channel: ChannelSMS, Status: StatusSkipped, Detail: "SMS channel not configured"}
	}

	text := truncate(payload.Title+": "+payload.Message, smsBodyCap)
	body := text
	if payload.ActionLink != "" {
		body = text + "\n" + payload.ActionLink
	}

	form := url.Values{
		"To":   {targets.Phone},
		"From": {dc.SMSFromNumber},
		"Body": {body},
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", twilioBase, dc.SMSAccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return DispatchResult{Channel: ChannelSMS, Status: StatusFailed, Detail: err.Error()}
	}
	req.SetBasicAuth(dc.SMSAccountSID, dc.SMSAuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := dc.transport().Do(req)
	if err != nil {
		return DispatchResult{Channel: ChannelSMS, Status: StatusFailed, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if !success(resp.StatusCode) {
		return DispatchResult{Channel: ChannelSMS, Status: StatusFailed, Detail: fmt.Sprintf("Twilio %d", resp.StatusCode)}
	}

	return DispatchResult{Channel: ChannelSMS, Status: StatusSent}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
