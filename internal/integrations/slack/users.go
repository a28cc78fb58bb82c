package slackbot

import (
	"context"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// mentionPrefix returns the "<@ID> ..." prefix for configured mentions. The
// workspace is looked up once per Notifier; a failed lookup is retried on
// the next notice.
func (n *Notifier) mentionPrefix(ctx context.Context) string {
	if len(n.mention) == 0 {
		return ""
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.resolved {
		members, err := n.api.GetUsersContext(ctx)
		if err != nil {
			n.logger.Warn("listing slack users failed", zap.Error(err))
			return ""
		}
		var missing []string
		n.prefix, missing = matchMentions(n.mention, members)
		n.resolved = true
		if len(missing) > 0 {
			n.logger.Warn("unresolved slack mentions", zap.Strings("mention", missing))
		}
	}
	return n.prefix
}

// matchMentions maps each entry to a member by ID, handle or display name.
// Names compare case-insensitively; a member is mentioned at most once.
func matchMentions(entries []string, members []slack.User) (string, []string) {
	var (
		tags    []string
		missing []string
		seen    = map[string]bool{}
	)
	for _, entry := range entries {
		entry = strings.TrimPrefix(strings.TrimSpace(entry), "@")
		if entry == "" {
			continue
		}
		id := ""
		for _, m := range members {
			if m.ID == entry || strings.EqualFold(m.Name, entry) || strings.EqualFold(m.Profile.DisplayName, entry) {
				id = m.ID
				break
			}
		}
		switch {
		case id == "":
			missing = append(missing, entry)
		case !seen[id]:
			seen[id] = true
			tags = append(tags, "<@"+id+">")
		}
	}
	return strings.Join(tags, " "), missing
}
