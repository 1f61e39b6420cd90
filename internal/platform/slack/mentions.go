package slackconn

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/deskbot/internal/domain"
)

var (
	userMention  = regexp.MustCompile(`<@([UW][A-Z0-9]+)(?:\|([^>]*))?>`)
	groupMention = regexp.MustCompile(`<!subteam\^([A-Z0-9]+)(?:\|@?([^>]*))?>`)
)

// parseUserMentions returns the users mentioned in text, in order, once each.
// Username is the display label Slack embedded, if any.
func parseUserMentions(text string) []domain.User {
	var out []domain.User
	seen := map[string]bool{}
	for _, m := range userMention.FindAllStringSubmatch(text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, domain.User{ID: m[1], Username: m[2]})
	}
	return out
}

// parseGroupMentions returns the user groups mentioned in text. User
// groups stand in for roles.
func parseGroupMentions(text string) []domain.RoleOption {
	var out []domain.RoleOption
	seen := map[string]bool{}
	for _, m := range groupMention.FindAllStringSubmatch(text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		name := m[2]
		if name == "" {
			name = m[1]
		}
		out = append(out, domain.RoleOption{ID: m[1], Name: name})
	}
	return out
}

// parseTimestamp converts a Slack message ts ("1714813200.000200").
func parseTimestamp(ts string) (time.Time, bool) {
	secs, frac, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		if nsec, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return time.Time{}, false
		}
	}
	return time.Unix(sec, nsec).UTC(), true
}
