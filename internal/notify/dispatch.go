package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Provider endpoints are fixed; tests inject a stub transport instead
// of redirecting URLs.
const (
	sendGridURL = "https://api.sendgrid.com/v3/mail/send"
	twilioBase  = "https://api.twilio.com/2010-04-01"
	fcmURL      = "https://fcm.googleapis.com/fcm/send"

	defaultHTTPTimeout = 30 * time.Second
)

// Dispatch attempts delivery of payload on every requested channel and
// returns one DispatchResult per channel.
//
// The channel list is normalized (first occurrence wins, in_app
// prepended when absent), so the recipient always has at least an
// in-app record of the notification. All network channels run
// concurrently; Dispatch returns only after every attempt has resolved.
// Result order follows the normalized input order, not completion
// order. A panicking adapter is contained and reported as a failed
// result for its channel only.
func Dispatch(ctx context.Context, channels []Channel, payload Payload, targets ContactInfo, dc DispatchContext) []DispatchResult {
	ordered := NormalizeChannels(channels)
	results := make([]DispatchResult, len(ordered))

	var wg sync.WaitGroup
	for i, ch := range ordered {
		wg.Add(1)
		go func(slot int, ch Channel) {
			defer wg.Done()
			results[slot] = attempt(ctx, ch, payload, targets, dc)
		}(i, ch)
	}
	wg.Wait()

	return results
}

// attempt runs a single channel adapter with panic containment. Any
// fault escaping an adapter becomes a failed result rather than
// aborting the sibling dispatches.
func attempt(ctx context.Context, ch Channel, payload Payload, targets ContactInfo, dc DispatchContext) (result DispatchResult) {
	defer func() {
		if r := recover(); r != nil {
			result = DispatchResult{Channel: ch, Status: StatusFailed, Detail: fmt.Sprintf("%v", r)}
		}
	}()

	switch ch {
	case ChannelInApp:
		// In-app delivery is the persisted notification row itself; there
		// is no external dependency to fail.
		return DispatchResult{Channel: ChannelInApp, Status: StatusSent}
	case ChannelEmail:
		return sendEmail(ctx, payload, targets, dc)
	case ChannelSMS:
		return sendSMS(ctx, payload, targets, dc)
	case ChannelPush:
		return sendPush(ctx, payload, targets, dc)
	default:
		return DispatchResult{Channel: ch, Status: StatusSkipped, Detail: "Unsupported channel"}
	}
}

// NormalizeChannels keeps the first occurrence of each channel and
// forces in_app to the front when it was not requested. Callers that
// persist a channel list must normalize it with this function before
// storing, so the stored list, the preference filter input, and the
// dispatched set all agree.
func NormalizeChannels(channels []Channel) []Channel {
	seen := make(map[Channel]struct{}, len(channels))
	out := make([]Channel, 0, len(channels)+1)
	for _, ch := range channels {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	if _, ok := seen[ChannelInApp]; !ok {
		out = append([]Channel{ChannelInApp}, out...)
	}
	return out
}

// success reports whether an HTTP status is in the 2xx range.
func success(status int) bool {
	return status >= 200 && status < 300
}
