package guild

import (
	"context"
)

// AddAsset registers a guild asset owned by creator and seeds the default
// permission rows for owner, admin and member. Guests get no row. The id
// comes from the counter proposals use. Admin or higher.
func (r *Registry) AddAsset(ctx context.Context, guildID uint64, creator string, spec AssetSpec) (uint64, error) {
	if err := validPrincipal(creator); err != nil {
		return 0, err
	}
	if err := validText(spec.Name, 1, MaxNameLen); err != nil {
		return 0, err
	}
	if err := validText(spec.Type, 0, MaxAssetTypeLen); err != nil {
		return 0, err
	}
	if err := validText(spec.Metadata, 0, MaxMetadataLen); err != nil {
		return 0, err
	}
	if spec.Value > MaxQuantity {
		return 0, ErrInvalidParameter
	}

	var id uint64
	err := r.update(ctx, "add_guild_asset", func(u *unit) error {
		g, err := loadGuild(u, guildID)
		if err != nil {
			return err
		}
		if err := requireRole(u, guildID, creator, RoleAdmin); err != nil {
			return err
		}
		id = nextItemID(&g)
		a := Asset{
			GuildID:      guildID,
			ID:           id,
			Name:         spec.Name,
			Type:         spec.Type,
			Owner:        creator,
			Value:        spec.Value,
			Metadata:     spec.Metadata,
			Transferable: spec.Transferable,
		}
		if err := u.PutAsset(a); err != nil {
			return err
		}
		for _, perm := range defaultPermissions(guildID, id) {
			if err := u.PutPermission(perm); err != nil {
				return err
			}
		}
		if err := u.PutGuild(g); err != nil {
			return err
		}
		u.emit("asset.added", guildID, creator, map[string]any{
			"asset_id": id,
			"name":     spec.Name,
			"type":     spec.Type,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SetPermissions overwrites the permission row for exactly role on an asset.
// Any role value is accepted, not only the named ones. Admin or higher.
func (r *Registry) SetPermissions(ctx context.Context, guildID, assetID uint64, caller string, perm Permission) error {
	if err := validPrincipal(caller); err != nil {
		return err
	}
	perm.GuildID = guildID
	perm.AssetID = assetID
	return r.update(ctx, "set_resource_permissions", func(u *unit) error {
		if _, err := loadGuild(u, guildID); err != nil {
			return err
		}
		if err := requireRole(u, guildID, caller, RoleAdmin); err != nil {
			return err
		}
		if err := u.PutPermission(perm); err != nil {
			return err
		}
		u.emit("permissions.set", guildID, caller, map[string]any{
			"asset_id":     assetID,
			"role":         uint32(perm.Role),
			"can_use":      perm.CanUse,
			"can_manage":   perm.CanManage,
			"can_transfer": perm.CanTransfer,
		})
		return nil
	})
}

// CanAccess resolves user's role and returns can_use from the row for that
// exact role. There is no inheritance between roles: a missing row means
// false. Non-members get ErrNotMember.
func (r *Registry) CanAccess(ctx context.Context, guildID, assetID uint64, user string) (bool, error) {
	var ok bool
	err := r.view(ctx, "can_access_resource", func(tx Tx) error {
		m, err := member(tx, guildID, user)
		if err != nil {
			return err
		}
		perm, found, err := tx.Permission(guildID, assetID, m.Role)
		if err != nil || !found {
			return err
		}
		ok = perm.CanUse
		return nil
	})
	return ok, err
}

// Permissions returns the row stored for role, if any.
func (r *Registry) Permissions(ctx context.Context, guildID, assetID uint64, role Role) (Permission, bool, error) {
	var (
		perm  Permission
		found bool
	)
	err := r.view(ctx, "get_permissions", func(tx Tx) error {
		var err error
		perm, found, err = tx.Permission(guildID, assetID, role)
		return err
	})
	return perm, found, err
}

// AssetInfo returns the asset record.
func (r *Registry) AssetInfo(ctx context.Context, guildID, assetID uint64) (Asset, error) {
	var a Asset
	err := r.view(ctx, "get_asset_info", func(tx Tx) error {
		var (
			found bool
			err   error
		)
		a, found, err = tx.Asset(guildID, assetID)
		if err != nil {
			return err
		}
		if !found {
			return ErrAssetNotFound
		}
		return nil
	})
	return a, err
}
