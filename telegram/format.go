package telegram

import (
	"fmt"
	"strings"

	"platinmods-notifier/pkg/notifier"
)

// renderEvent turns one transition event into exactly one chat message.
func renderEvent(ev notifier.Event) string {
	switch ev.Kind {
	case notifier.UserWentOnline:
		return fmt.Sprintf("🚨 **USER ALERT**\n\n👤 **%s** is now **ONLINE**! 🟢\n🔗 [Profile Link](%s)",
			ev.Target.Name, ev.Target.URL)
	case notifier.UserWentOffline:
		return fmt.Sprintf("💤 **STATUS UPDATE**\n\n👤 **%s** is now **OFFLINE** 🔴", ev.Target.Name)
	case notifier.ThreadAppeared:
		return fmt.Sprintf("✨ **NEW THREAD** in __%s__\n\n📝 **%s**\n🔗 [View Thread](%s)",
			ev.Target.Name, ev.Thread.Title, ev.Thread.URL)
	case notifier.ThreadDisappeared:
		return fmt.Sprintf("🗑 **THREAD REMOVED** from __%s__\n\n📝 **%s**", ev.Target.Name, ev.Thread.Title)
	default:
		return ""
	}
}

// renderSummary builds the manual-check report. Targets are listed in
// configured order, not map order.
func renderSummary(sum notifier.Summary, presence, forums []notifier.Target) string {
	var b strings.Builder
	b.WriteString("✅ **MANUAL CHECK COMPLETE**\n\n")

	b.WriteString("👤 **User Status**\n")
	for _, t := range presence {
		status, ok := sum.Users[t.Name]
		if !ok {
			continue
		}
		emoji := "❓"
		switch status {
		case notifier.StatusOnline:
			emoji = "🟢"
		case notifier.StatusOffline:
			emoji = "🔴"
		}
		fmt.Fprintf(&b, "• %s: **%s** %s\n", t.Name, status, emoji)
	}

	b.WriteString("\n📚 **Forum Thread Counts**\n")
	for _, t := range forums {
		result, ok := sum.Forums[t.Name]
		if !ok {
			continue
		}
		if result.Failed {
			fmt.Fprintf(&b, "• %s: **Error** threads\n", t.Name)
		} else {
			fmt.Fprintf(&b, "• %s: **%d** threads\n", t.Name, result.Count)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderBroadcastProgress is the in-flight status edit during a broadcast.
func renderBroadcastProgress(total, done, succeeded, blocked, failed int) string {
	return fmt.Sprintf(
		"📣 **Broadcast in progress**\n\n"+
			"👥 Total users: %d\n"+
			"💫 Completed: %d / %d\n"+
			"✅ Success: %d\n"+
			"🚫 Blocked/Deleted: %d\n"+
			"❌ Failed: %d",
		total, done, total, succeeded, blocked, failed)
}

// renderBroadcastDone is the final broadcast report.
func renderBroadcastDone(total, succeeded, blocked, failed int, elapsed string) string {
	return fmt.Sprintf(
		"📣 **Broadcast complete**\n"+
			"⏰ Took: %s\n\n"+
			"👥 Total users: %d\n"+
			"✅ Success: %d\n"+
			"🚫 Blocked/Deleted: %d\n"+
			"❌ Failed: %d",
		elapsed, total, succeeded, blocked, failed)
}
