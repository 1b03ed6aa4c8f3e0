package guild

import (
	"context"

	"guildhall.org/internal/obs"
)

// CreateGuild registers a new guild founded by creator. The stake must reach
// RequiredStakeAmount; it seeds the treasury, becomes the founder's
// contribution and sets the stake later joiners must match.
func (r *Registry) CreateGuild(ctx context.Context, creator, name, description string, stake uint64) (uint64, error) {
	if err := validPrincipal(creator); err != nil {
		return 0, err
	}
	if err := validText(name, 1, MaxNameLen); err != nil {
		return 0, err
	}
	if err := validText(description, 0, MaxDescriptionLen); err != nil {
		return 0, err
	}
	if stake < RequiredStakeAmount {
		return 0, ErrInsufficientStake
	}
	delta, err := toDelta(stake)
	if err != nil {
		return 0, err
	}

	var id, count uint64
	err = r.update(ctx, "create_guild", func(u *unit) error {
		cs, err := u.Contract()
		if err != nil {
			return err
		}
		id = cs.GuildCount + 1
		if _, exists, err := u.Guild(id); err != nil {
			return err
		} else if exists {
			return ErrGuildAlreadyExists
		}

		g := Guild{
			ID:            id,
			Name:          name,
			Description:   description,
			Founder:       creator,
			CreatedAt:     u.height,
			RequiredStake: stake,
		}
		if err := adjustTreasury(&g, delta); err != nil {
			return err
		}
		founder := Member{
			GuildID:      id,
			Principal:    creator,
			JoinedAt:     u.height,
			Role:         RoleOwner,
			Tier:         TierFounder,
			Contribution: stake,
			Reputation:   founderReputation,
		}
		if err := addMember(u, &g, founder); err != nil {
			return err
		}
		if err := u.PutGuild(g); err != nil {
			return err
		}
		cs.GuildCount = id
		if err := u.PutContract(cs); err != nil {
			return err
		}
		count = cs.GuildCount
		u.emit("guild.created", id, creator, map[string]any{
			"name":  name,
			"stake": stake,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	obs.SetGuildCount(count)
	return id, nil
}

// TransferOwnership hands the founder seat to an existing member. The new
// owner is promoted to RoleOwner and the previous founder drops to
// RoleAdmin but stays a member.
func (r *Registry) TransferOwnership(ctx context.Context, guildID uint64, currentOwner, newOwner string) error {
	if err := validPrincipal(currentOwner); err != nil {
		return err
	}
	if err := validPrincipal(newOwner); err != nil {
		return err
	}
	if currentOwner == newOwner {
		return ErrInvalidParameter
	}
	return r.update(ctx, "transfer_ownership", func(u *unit) error {
		g, err := loadGuild(u, guildID)
		if err != nil {
			return err
		}
		if g.Founder != currentOwner {
			return ErrNotAuthorized
		}
		next, err := member(u, guildID, newOwner)
		if err != nil {
			return err
		}
		prev, hasPrev, err := u.Member(guildID, currentOwner)
		if err != nil {
			return err
		}

		g.Founder = newOwner
		next.Role = RoleOwner
		if err := u.PutGuild(g); err != nil {
			return err
		}
		if err := u.PutMember(next); err != nil {
			return err
		}
		if hasPrev {
			prev.Role = RoleAdmin
			if err := u.PutMember(prev); err != nil {
				return err
			}
		}
		u.emit("ownership.transferred", guildID, currentOwner, map[string]any{"new_owner": newOwner})
		return nil
	})
}

// UpdateGuildInfo overwrites the descriptive fields of a guild. Admin or
// higher.
func (r *Registry) UpdateGuildInfo(ctx context.Context, guildID uint64, caller string, upd GuildUpdate) (Guild, error) {
	if err := validPrincipal(caller); err != nil {
		return Guild{}, err
	}
	if upd.Name != nil {
		if err := validText(*upd.Name, 1, MaxNameLen); err != nil {
			return Guild{}, err
		}
	}
	if upd.Description != nil {
		if err := validText(*upd.Description, 0, MaxDescriptionLen); err != nil {
			return Guild{}, err
		}
	}
	if upd.GovernanceToken != nil {
		if err := validText(*upd.GovernanceToken, 0, MaxTokenRefLen); err != nil {
			return Guild{}, err
		}
	}

	var out Guild
	err := r.update(ctx, "update_guild_info", func(u *unit) error {
		g, err := loadGuild(u, guildID)
		if err != nil {
			return err
		}
		if err := requireRole(u, guildID, caller, RoleAdmin); err != nil {
			return err
		}
		changed := map[string]any{}
		if upd.Name != nil {
			g.Name = *upd.Name
			changed["name"] = g.Name
		}
		if upd.Description != nil {
			g.Description = *upd.Description
			changed["description"] = g.Description
		}
		if upd.GovernanceToken != nil {
			g.GovernanceToken = *upd.GovernanceToken
			changed["governance_token"] = g.GovernanceToken
		}
		if err := u.PutGuild(g); err != nil {
			return err
		}
		out = g
		u.emit("guild.updated", guildID, caller, changed)
		return nil
	})
	return out, err
}

// GuildInfo returns the guild record.
func (r *Registry) GuildInfo(ctx context.Context, guildID uint64) (Guild, error) {
	var g Guild
	err := r.view(ctx, "get_guild_info", func(tx Tx) error {
		var err error
		g, err = loadGuild(tx, guildID)
		return err
	})
	return g, err
}

// GuildCount returns the number of guilds ever created; it is also the
// highest guild id.
func (r *Registry) GuildCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := r.view(ctx, "get_guild_count", func(tx Tx) error {
		cs, err := tx.Contract()
		if err != nil {
			return err
		}
		n = cs.GuildCount
		return nil
	})
	return n, err
}
