// Package access resolves which channels a user may see and join given
// license-tier attributes. It is shared by the server services and the
// client-side conversation store so both sides gate identically.
package access

import (
	"errors"

	"github.com/jasonhq/relay/internal/domain"
)

var (
	ErrChannelArchived = errors.New("channel is archived")
	ErrAccessDenied    = errors.New("channel tier not satisfied by user license")
)

// JoinOutcome describes what joining a channel will produce.
type JoinOutcome int

const (
	// JoinImmediate means membership is granted directly.
	JoinImmediate JoinOutcome = iota
	// JoinNeedsRequest means a pending JoinRequest must be created and
	// resolved by an administrator.
	JoinNeedsRequest
)

// TierSatisfied reports whether the user's license attributes satisfy a
// channel tier. Administrators satisfy every tier.
func TierSatisfied(user *domain.User, tier domain.Tier) bool {
	if user.IsAdmin {
		return true
	}
	switch tier {
	case domain.TierNonLicensed:
		return true
	case domain.TierFLLicensed:
		return user.HasFLLicense
	case domain.TierMultiState:
		return user.HasMultiStateLicense
	}
	return false
}

// AccessibleChannels filters all into the ordered subset the user may see.
// Input order is preserved.
func AccessibleChannels(user *domain.User, all []domain.Channel) []domain.Channel {
	visible := make([]domain.Channel, 0, len(all))
	for _, ch := range all {
		if TierSatisfied(user, ch.Tier) {
			visible = append(visible, ch)
		}
	}
	return visible
}

// CheckJoin decides how the user may join the channel. Archived channels
// are never joinable; tier rules apply before membership mechanics.
func CheckJoin(user *domain.User, ch *domain.Channel) (JoinOutcome, error) {
	if ch.IsArchived {
		return 0, ErrChannelArchived
	}
	if !TierSatisfied(user, ch.Tier) {
		return 0, ErrAccessDenied
	}
	if ch.IsPrivate && !ch.IsMember {
		return JoinNeedsRequest, nil
	}
	return JoinImmediate, nil
}
