package guild

import (
	"context"
)

// member resolves the membership of principal in guildID.
func member(tx Tx, guildID uint64, principal string) (Member, error) {
	m, ok, err := tx.Member(guildID, principal)
	if err != nil {
		return Member{}, err
	}
	if !ok {
		return Member{}, ErrNotMember
	}
	return m, nil
}

// hasRoleAtLeast is true iff principal is a member whose role is >= threshold.
func hasRoleAtLeast(tx Tx, guildID uint64, principal string, threshold Role) (bool, error) {
	m, ok, err := tx.Member(guildID, principal)
	if err != nil || !ok {
		return false, err
	}
	return m.Role >= threshold, nil
}

func requireRole(tx Tx, guildID uint64, principal string, threshold Role) error {
	ok, err := hasRoleAtLeast(tx, guildID, principal, threshold)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// addMember inserts m and updates the guild aggregates in g. The caller
// writes g back.
func addMember(tx Tx, g *Guild, m Member) error {
	_, exists, err := tx.Member(g.ID, m.Principal)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyMember
	}
	if err := tx.PutMember(m); err != nil {
		return err
	}
	g.MemberCount++
	g.ReputationScore += m.Reputation
	return nil
}

// removeMember deletes the membership of principal. The founder can never
// be removed; ownership has to be transferred first.
func removeMember(tx Tx, g *Guild, principal string) error {
	if principal == g.Founder {
		return ErrNotAuthorized
	}
	m, err := member(tx, g.ID, principal)
	if err != nil {
		return err
	}
	if err := tx.DeleteMember(g.ID, principal); err != nil {
		return err
	}
	g.MemberCount--
	if g.ReputationScore >= m.Reputation {
		g.ReputationScore -= m.Reputation
	} else {
		g.ReputationScore = 0
	}
	return nil
}

// adjustTreasury applies a signed delta; the balance may never go negative.
func adjustTreasury(g *Guild, delta int64) error {
	next := g.TreasuryBalance + delta
	if delta > 0 && next < g.TreasuryBalance {
		return ErrInvalidParameter
	}
	if next < 0 {
		return ErrInsufficientFunds
	}
	g.TreasuryBalance = next
	return nil
}

func toDelta(amount uint64) (int64, error) {
	if amount > MaxQuantity {
		return 0, ErrInvalidParameter
	}
	return int64(amount), nil
}

// addQuantity returns a+b, or ErrInvalidParameter when the sum passes
// MaxQuantity.
func addQuantity(a, b uint64) (uint64, error) {
	if a > MaxQuantity || b > MaxQuantity-a {
		return 0, ErrInvalidParameter
	}
	return a + b, nil
}

// IsMember reports whether principal belongs to the guild.
func (r *Registry) IsMember(ctx context.Context, guildID uint64, principal string) (bool, error) {
	var ok bool
	err := r.view(ctx, "is_member", func(tx Tx) error {
		var err error
		_, ok, err = tx.Member(guildID, principal)
		return err
	})
	return ok, err
}

// HasRoleAtLeast reports whether principal is a member with role >= threshold.
func (r *Registry) HasRoleAtLeast(ctx context.Context, guildID uint64, principal string, threshold Role) (bool, error) {
	var ok bool
	err := r.view(ctx, "has_role_at_least", func(tx Tx) error {
		var err error
		ok, err = hasRoleAtLeast(tx, guildID, principal, threshold)
		return err
	})
	return ok, err
}

// MemberInfo returns the membership record.
func (r *Registry) MemberInfo(ctx context.Context, guildID uint64, principal string) (Member, error) {
	var m Member
	err := r.view(ctx, "get_member_info", func(tx Tx) error {
		var err error
		m, err = member(tx, guildID, principal)
		return err
	})
	return m, err
}

// VotingPower returns 1 + tier*10 + reputation/100, or 0 for non-members.
func (r *Registry) VotingPower(ctx context.Context, guildID uint64, principal string) (uint64, error) {
	var power uint64
	err := r.view(ctx, "voting_power", func(tx Tx) error {
		m, ok, err := tx.Member(guildID, principal)
		if err != nil || !ok {
			return err
		}
		power = m.VotingPower()
		return nil
	})
	return power, err
}

// InviteMember adds invitee as a plain member. The caller must be admin or
// higher.
func (r *Registry) InviteMember(ctx context.Context, guildID uint64, caller, invitee string) error {
	if err := validPrincipal(caller); err != nil {
		return err
	}
	if err := validPrincipal(invitee); err != nil {
		return err
	}
	return r.update(ctx, "invite_member", func(u *unit) error {
		g, err := loadGuild(u, guildID)
		if err != nil {
			return err
		}
		if err := requireRole(u, guildID, caller, RoleAdmin); err != nil {
			return err
		}
		m := Member{
			GuildID:   guildID,
			Principal: invitee,
			JoinedAt:  u.height,
			Role:      RoleMember,
			Tier:      TierMember,
		}
		if err := addMember(u, &g, m); err != nil {
			return err
		}
		if err := u.PutGuild(g); err != nil {
			return err
		}
		u.emit("member.invited", guildID, caller, map[string]any{"invitee": invitee})
		return nil
	})
}

// JoinGuild makes caller a member in exchange for a stake of at least the
// guild's required stake. The stake goes to the treasury and counts as the
// member's contribution.
func (r *Registry) JoinGuild(ctx context.Context, guildID uint64, caller string, stake uint64) error {
	if err := validPrincipal(caller); err != nil {
		return err
	}
	return r.update(ctx, "join_guild", func(u *unit) error {
		g, err := loadGuild(u, guildID)
		if err != nil {
			return err
		}
		if _, exists, err := u.Member(guildID, caller); err != nil {
			return err
		} else if exists {
			return ErrAlreadyMember
		}
		if stake < g.RequiredStake {
			return ErrInsufficientStake
		}
		delta, err := toDelta(stake)
		if err != nil {
			return err
		}
		if err := adjustTreasury(&g, delta); err != nil {
			return err
		}
		m := Member{
			GuildID:      guildID,
			Principal:    caller,
			JoinedAt:     u.height,
			Role:         RoleMember,
			Tier:         TierMember,
			Contribution: stake,
		}
		if err := addMember(u, &g, m); err != nil {
			return err
		}
		if err := u.PutGuild(g); err != nil {
			return err
		}
		u.emit("member.joined", guildID, caller, map[string]any{"stake": stake})
		return nil
	})
}

// LeaveGuild removes the caller's membership. The founder cannot leave.
func (r *Registry) LeaveGuild(ctx context.Context, guildID uint64, caller string) error {
	if err := validPrincipal(caller); err != nil {
		return err
	}
	return r.update(ctx, "leave_guild", func(u *unit) error {
		g, err := loadGuild(u, guildID)
		if err != nil {
			return err
		}
		if err := removeMember(u, &g, caller); err != nil {
			return err
		}
		if err := u.PutGuild(g); err != nil {
			return err
		}
		u.emit("member.left", guildID, caller, nil)
		return nil
	})
}

// SetMemberRole changes target's role. Only owners may call it.
func (r *Registry) SetMemberRole(ctx context.Context, guildID uint64, caller, target string, role Role) error {
	if err := validPrincipal(caller); err != nil {
		return err
	}
	if !role.Valid() {
		return ErrInvalidParameter
	}
	return r.update(ctx, "set_member_role", func(u *unit) error {
		if _, err := loadGuild(u, guildID); err != nil {
			return err
		}
		if err := requireRole(u, guildID, caller, RoleOwner); err != nil {
			return err
		}
		m, err := member(u, guildID, target)
		if err != nil {
			return err
		}
		prev := m.Role
		m.Role = role
		if err := u.PutMember(m); err != nil {
			return err
		}
		u.emit("member.role_changed", guildID, caller, map[string]any{
			"member":   target,
			"from":     uint32(prev),
			"to":       uint32(role),
			"role_tag": role.String(),
		})
		return nil
	})
}

// ContributeToTreasury moves amount from the caller into the guild treasury,
// records it as contribution and grants amount/100 reputation.
func (r *Registry) ContributeToTreasury(ctx context.Context, guildID uint64, caller string, amount uint64) error {
	if err := validPrincipal(caller); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidParameter
	}
	delta, err := toDelta(amount)
	if err != nil {
		return err
	}
	return r.update(ctx, "contribute_to_treasury", func(u *unit) error {
		m, err := member(u, guildID, caller)
		if err != nil {
			return err
		}
		g, err := loadGuild(u, guildID)
		if err != nil {
			return err
		}
		if err := adjustTreasury(&g, delta); err != nil {
			return err
		}
		bonus := amount / reputationPerUnit
		if m.Contribution, err = addQuantity(m.Contribution, amount); err != nil {
			return err
		}
		if m.Reputation, err = addQuantity(m.Reputation, bonus); err != nil {
			return err
		}
		if g.ReputationScore, err = addQuantity(g.ReputationScore, bonus); err != nil {
			return err
		}
		if err := u.PutMember(m); err != nil {
			return err
		}
		if err := u.PutGuild(g); err != nil {
			return err
		}
		u.emit("treasury.contribution", guildID, caller, map[string]any{
			"amount":           amount,
			"reputation_bonus": bonus,
			"treasury_balance": g.TreasuryBalance,
		})
		return nil
	})
}

// AwardReputation grants amount reputation to a member. Member and guild
// reputation stay within MaxQuantity. Admin or higher.
func (r *Registry) AwardReputation(ctx context.Context, guildID uint64, caller, target string, amount uint64) error {
	if err := validPrincipal(caller); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidParameter
	}
	return r.update(ctx, "award_reputation", func(u *unit) error {
		g, err := loadGuild(u, guildID)
		if err != nil {
			return err
		}
		if err := requireRole(u, guildID, caller, RoleAdmin); err != nil {
			return err
		}
		m, err := member(u, guildID, target)
		if err != nil {
			return err
		}
		if m.Reputation, err = addQuantity(m.Reputation, amount); err != nil {
			return err
		}
		if g.ReputationScore, err = addQuantity(g.ReputationScore, amount); err != nil {
			return err
		}
		if err := u.PutMember(m); err != nil {
			return err
		}
		if err := u.PutGuild(g); err != nil {
			return err
		}
		u.emit("reputation.awarded", guildID, caller, map[string]any{
			"member": target,
			"amount": amount,
		})
		return nil
	})
}
