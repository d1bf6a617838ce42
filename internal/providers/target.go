package providers

import (
	"strings"

	"github.com/google/uuid"
)

const (
	targetSeparator = "|"
	commentsMarker  = "COMMENTS:"
	refSuffixLen    = 6
)

// GameTarget is "<userID>|<serverID>"; the server part is optional.
type GameTarget struct {
	UserID   string
	ServerID string
}

// Joined renders the target the way vendors without a server field expect it.
func (g GameTarget) Joined() string {
	if g.ServerID == "" {
		return g.UserID
	}
	return g.UserID + g.ServerID
}

// ParseGameTarget splits a game account target.
func ParseGameTarget(target string) GameTarget {
	user, server, _ := strings.Cut(strings.TrimSpace(target), targetSeparator)
	return GameTarget{
		UserID:   strings.TrimSpace(user),
		ServerID: strings.TrimSpace(server),
	}
}

// SosmedTarget is "<url>| COMMENTS: <text>"; comments are optional.
type SosmedTarget struct {
	URL      string
	Comments string
}

// ParseSosmedTarget splits a social engagement target.
func ParseSosmedTarget(target string) SosmedTarget {
	link, rest, found := strings.Cut(strings.TrimSpace(target), targetSeparator)
	out := SosmedTarget{URL: strings.TrimSpace(link)}
	if !found {
		return out
	}
	rest = strings.TrimSpace(rest)
	if idx := strings.Index(strings.ToUpper(rest), commentsMarker); idx >= 0 {
		rest = rest[idx+len(commentsMarker):]
	}
	out.Comments = strings.TrimSpace(rest)
	return out
}

// RefID derives the vendor correlation id from the invoice and the item, so
// a re-dispatch of the same item reuses it and vendors deduplicate.
func RefID(invoiceCode string, itemID uuid.UUID) string {
	suffix := strings.ReplaceAll(itemID.String(), "-", "")[:refSuffixLen]
	return strings.TrimSpace(invoiceCode) + "-" + suffix
}
