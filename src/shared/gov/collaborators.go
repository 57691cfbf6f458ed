package gov

import (
	"context"
	"time"
)

// Profile is the eligibility view of a member.
type Profile struct {
	UserID          string
	GuildID         string
	Cohort          string
	ActivityScore   int
	ReputationScore int
}

// ProfileStore reads member profiles. It returns ErrNoProfile when the member
// has none.
type ProfileStore interface {
	GetProfile(ctx context.Context, guildID, userID string) (*Profile, error)
}

// PrivilegeGateway grants and revokes administrative capability on the host
// platform. Failures never block a governance transition.
type PrivilegeGateway interface {
	Grant(ctx context.Context, guildID, userID string) error
	Revoke(ctx context.Context, guildID, userID string) error
	ListAdmins(ctx context.Context, guildID string) ([]string, error)
	MembershipCount(ctx context.Context, guildID string) (int, error)
}

// Notifier delivers governance announcements. Best effort.
type Notifier interface {
	Send(ctx context.Context, guildID, text string) error
}

// Clock supplies the current time; engines take one so tests can move it.
type Clock func() time.Time

// Now returns c() or time.Now when c is nil.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
