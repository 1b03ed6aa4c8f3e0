package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"guildhall.org/internal/audit"
	"guildhall.org/internal/guild"
)

type createAssetRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Value        uint64 `json:"value"`
	Metadata     string `json:"metadata"`
	Transferable bool   `json:"transferable"`
}

type permissionsRequest struct {
	CanUse      bool `json:"can_use"`
	CanManage   bool `json:"can_manage"`
	CanTransfer bool `json:"can_transfer"`
}

func assetPath(w http.ResponseWriter, r *http.Request) (uint64, uint64, bool) {
	gid, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	aid, err := pathUint(r, "aid")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return gid, aid, true
}

// parseRole accepts a numeric role or one of the role names.
func parseRole(raw string) (guild.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "guest":
		return guild.RoleGuest, true
	case "member":
		return guild.RoleMember, true
	case "admin":
		return guild.RoleAdmin, true
	case "owner":
		return guild.RoleOwner, true
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return guild.Role(n), true
}

func (a *API) addAsset(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	gid, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req createAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	aid, err := a.reg.AddAsset(r.Context(), gid, principal, guild.AssetSpec{
		Name:         req.Name,
		Type:         req.Type,
		Value:        req.Value,
		Metadata:     req.Metadata,
		Transferable: req.Transferable,
	})
	audit.Outcome(r.Context(), "asset.added", map[string]any{
		"guild_id": gid,
		"asset_id": aid,
		"name":     req.Name,
	}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	a.respondAsset(w, r, gid, aid, http.StatusCreated)
}

func (a *API) getAsset(w http.ResponseWriter, r *http.Request) {
	gid, aid, ok := assetPath(w, r)
	if !ok {
		return
	}
	a.respondAsset(w, r, gid, aid, http.StatusOK)
}

func (a *API) getPermissions(w http.ResponseWriter, r *http.Request) {
	gid, aid, ok := assetPath(w, r)
	if !ok {
		return
	}
	role, ok := parseRole(r.PathValue("role"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "role must be a role name or number")
		return
	}
	perm, found, err := a.reg.Permissions(r.Context(), gid, aid, role)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, "no permissions set for role")
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func (a *API) setPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	gid, aid, ok := assetPath(w, r)
	if !ok {
		return
	}
	role, ok := parseRole(r.PathValue("role"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "role must be a role name or number")
		return
	}
	var req permissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm := guild.Permission{
		GuildID:     gid,
		AssetID:     aid,
		Role:        role,
		CanUse:      req.CanUse,
		CanManage:   req.CanManage,
		CanTransfer: req.CanTransfer,
	}
	err := a.reg.SetPermissions(r.Context(), gid, aid, principal, perm)
	audit.Outcome(r.Context(), "permissions.set", map[string]any{
		"guild_id":     gid,
		"asset_id":     aid,
		"role":         uint32(role),
		"can_use":      req.CanUse,
		"can_manage":   req.CanManage,
		"can_transfer": req.CanTransfer,
	}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

// canAccess answers for ?principal=, defaulting to the caller.
func (a *API) canAccess(w http.ResponseWriter, r *http.Request) {
	gid, aid, ok := assetPath(w, r)
	if !ok {
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("principal"))
	if target == "" {
		if target, ok = caller(w, r); !ok {
			return
		}
	}
	allowed, err := a.reg.CanAccess(r.Context(), gid, aid, target)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id":   gid,
		"asset_id":   aid,
		"principal":  target,
		"can_access": allowed,
	})
}

func (a *API) respondAsset(w http.ResponseWriter, r *http.Request, gid, aid uint64, code int) {
	asset, err := a.reg.AssetInfo(r.Context(), gid, aid)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, code, asset)
}
