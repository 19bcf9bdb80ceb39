package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmRequest struct {
	To           string                 `json:"to"`
	Notification fcmNotification        `json:"notification"`
	Data         map[string]interface{} `json:"data"`
}

// sendPush delivers the payload through the FCM legacy HTTP API. FCM
// expects a raw server-key authorization value, not a bearer token.
func sendPush(ctx context.Context, payload Payload, targets ContactInfo, dc DispatchContext) DispatchResult {
	if targets.PushToken == "" {
		return DispatchResult{Channel: ChannelPush, Status: StatusSkipped, Detail: "Recipient missing push token"}
	}
	if dc.FCMServerKey == "" {
		return DispatchResult{Channel: ChannelPush, Status: StatusSkipped, Detail: "Push channel not configured"}
	}

	data := payload.ActionData
	if data == nil {
		data = map[string]interface{}{}
	}

	reqBody := fcmRequest{
		To: targets.PushToken,
		Notification: fcmNotification{
			Title: payload.Title,
			Body:  payload.Message,
		},
		Data: data,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return DispatchResult{Channel: ChannelPush, Status: StatusFailed, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fcmURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return DispatchResult{Channel: ChannelPush, Status: StatusFailed, Detail: err.Error()}
	}
	req.Header.Set("Authorization", "key="+dc.FCMServerKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := dc.transport().Do(req)
	if err != nil {
		return DispatchResult{Channel: ChannelPush, Status: StatusFailed, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if !success(resp.StatusCode) {
		return DispatchResult{Channel: ChannelPush, Status: StatusFailed, Detail: fmt.Sprintf("FCM %d", resp.StatusCode)}
	}

	return DispatchResult{Channel: ChannelPush, Status: StatusSent}
}
