package notify

import "strings"

// PreferenceRow is one stored per-recipient opt-in/opt-out flag for a
// (notification type, channel) pair. Rows come from the preference
// store as a read-only snapshot.
type PreferenceRow struct {
	NotificationType string  `json:"notification_type"`
	Channel          Channel `json:"channel"`
	Enabled          bool    `json:"enabled"`
}

// FilterChannels narrows the requested channels against the
// recipient's stored preferences for the given notification type.
//
// The model is opt-out: a channel is excluded only when a row exists
// for this exact (type, channel) pair with enabled=false. Channels with
// no row pass through, and in_app always passes regardless of
// preferences. Input order is preserved. Callers must fall back to
// [in_app] when the filtered set is empty so the recipient is never
// silently unnotified.
func FilterChannels(requested []Channel, notificationType string, rows []PreferenceRow) []Channel {
	lookup := make(map[string]map[Channel]bool)
	for _, row := range rows {
		typeKey := strings.ToLower(row.NotificationType)
		if lookup[typeKey] == nil {
			lookup[typeKey] = make(map[Channel]bool)
		}
		lookup[typeKey][row.Channel] = row.Enabled
	}

	typeKey := strings.ToLower(notificationType)
	allowed := make([]Channel, 0, len(requested))
	seen := make(map[Channel]struct{}, len(requested))

	for _, ch := range requested {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}

		if ch == ChannelInApp {
			allowed = append(allowed, ch)
			continue
		}
		if enabled, ok := lookup[typeKey][ch]; !ok || enabled {
			allowed = append(allowed, ch)
		}
	}

	return allowed
}
