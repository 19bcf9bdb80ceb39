package notify

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSMS_SkipsWhenRecipientHasNoPhone(t *testing.T) {
	transport := &stubTransport{status: http.StatusCreated}
	contact := fullContact()
	contact.Phone = ""

	result := sendSMS(context.Background(), basePayload(), contact, fullContext(transport))

	assert.Equal(t, DispatchResult{Channel: ChannelSMS, Status: StatusSkipped, Detail: "Recipient missing phone number"}, result)
	assert.Zero(t, transport.requestCount())
}

func TestSendSMS_SkipsWhenNotConfigured(t *testing.T) {
	transport := &stubTransport{status: http.StatusCreated}
	dc := fullContext(transport)
	dc.SMSAuthToken = ""

	result := sendSMS(context.Background(), basePayload(), fullContact(), dc)

	assert.Equal(t, DispatchResult{Channel: ChannelSMS, Status: StatusSkipped, Detail: "SMS channel not configured"}, result)
	assert.Zero(t, transport.requestCount())
}

func TestSendSMS_SendsThroughTwilio(t *testing.T) {
	var capturedReq *http.Request
	var form url.Values

	transport := &stubTransport{
		status: http.StatusCreated,
		onRequest: func(req *http.Request) {
			capturedReq = req
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			parsed, err := url.ParseQuery(string(body))
			require.NoError(t, err)
			form = parsed
		},
	}

	payload := Payload{
		Title:      "Low stock",
		Message:    "Resistor kits are below threshold",
		ActionLink: "https://lablink.example/stock",
	}

	result := sendSMS(context.Background(), payload, fullContact(), fullContext(transport))

	assert.Equal(t, DispatchResult{Channel: ChannelSMS, Status: StatusSent}, result)

	require.NotNil(t, capturedReq)
	assert.Equal(t, "https://api.twilio.com/2010-04-01/Accounts/AC123/Messages.json", capturedReq.URL.String())
	assert.Equal(t, "application/x-www-form-urlencoded", capturedReq.Header.Get("Content-Type"))

	user, pass, ok := capturedReq.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "AC123", user)
	assert.Equal(t, "token", pass)

	assert.Equal(t, "+15558675309", form.Get("To"))
	assert.Equal(t, "+15550000000", form.Get("From"))
	assert.Equal(t, "Low stock: Resistor kits are below threshold\nhttps://lablink.example/stock", form.Get("Body"))
}

func TestSendSMS_ReportsProviderFailure(t *testing.T) {
	transport := &stubTransport{status: http.StatusInternalServerError}

	result := sendSMS(context.Background(), basePayload(), fullContact(), fullContext(transport))

	assert.Equal(t, DispatchResult{Channel: ChannelSMS, Status: StatusFailed, Detail: "Twilio 500"}, result)
}

func TestSendSMS_TruncatesBodyBeforeAppendingLink(t *testing.T) {
	var form url.Values
	transport := &stubTransport{
		status: http.StatusCreated,
		onRequest: func(req *http.Request) {
			body, _ := io.ReadAll(req.Body)
			form, _ = url.ParseQuery(string(body))
		},
	}

	payload := Payload{
		Title:      "Overdue",
		Message:    strings.Repeat("x", 2000),
		ActionLink: "https://lablink.example/overdue",
	}

	result := sendSMS(context.Background(), payload, fullContact(), fullContext(transport))
	require.Equal(t, StatusSent, result.Status)

	body := form.Get("Body")
	lines := strings.SplitN(body, "\n", 2)
	require.Len(t, lines, 2)
	assert.Len(t, []rune(lines[0]), smsBodyCap)
	assert.True(t, strings.HasPrefix(lines[0], "Overdue: "))
	assert.Equal(t, "https://lablink.example/overdue", lines[1])
}

func TestTruncate_CountsRunesNotBytes(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 10))
	assert.Equal(t, "hél", truncate("héllo", 3))
}
