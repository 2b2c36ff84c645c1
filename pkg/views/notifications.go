package views

import "github.com/illmade-knight/go-ridecache/pkg/types"

// BuildUnreadSummary counts unread notifications and picks the most recent
// one. On equal timestamps the earlier entry in the input wins.
func BuildUnreadSummary(notifications []types.Notification) types.UnreadSummary {
	var summary types.UnreadSummary
	for i := range notifications {
		n := notifications[i]
		if n.Read {
			continue
		}
		summary.Count++
		if summary.Latest == nil || n.CreatedAt.After(summary.Latest.CreatedAt) {
			latest := n
			summary.Latest = &latest
		}
	}
	return summary
}
