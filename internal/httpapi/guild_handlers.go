package httpapi

import (
	"net/http"
	"strings"

	"guildhall.org/internal/audit"
	"guildhall.org/internal/guild"
)

type createGuildRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Stake       uint64 `json:"stake"`
}

type updateGuildRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	GovernanceToken *string `json:"governance_token"`
}

type stakeRequest struct {
	Stake uint64 `json:"stake"`
}

type principalRequest struct {
	Principal string `json:"principal"`
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type reputationRequest struct {
	Principal string `json:"principal"`
	Amount    uint64 `json:"amount"`
}

type roleRequest struct {
	Role guild.Role `json:"role"`
}

type adminRequest struct {
	Admin string `json:"admin"`
}

type advanceRequest struct {
	Blocks uint64 `json:"blocks"`
}

func (a *API) getHeight(w http.ResponseWriter, r *http.Request) {
	h, err := a.reg.Height(r.Context())
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"height": h})
}

// advanceHeight steps a manual height source. Contract admin only.
func (a *API) advanceHeight(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	var req advanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	admin, err := a.reg.ContractAdmin(r.Context())
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	if admin != principal {
		handleGuildError(w, r, guild.ErrNotAuthorized)
		return
	}
	if req.Blocks == 0 {
		handleGuildError(w, r, guild.ErrInvalidParameter)
		return
	}
	h, err := a.manual.Advance(req.Blocks)
	if err != nil {
		handleGuildError(w, r, guild.ErrInvalidParameter)
		return
	}
	_ = audit.LogEvent(r.Context(), "height.advanced", map[string]any{"blocks": req.Blocks, "height": h})
	writeJSON(w, http.StatusOK, map[string]any{"height": h})
}

func (a *API) getAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := a.reg.ContractAdmin(r.Context())
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admin": admin})
}

func (a *API) setAdmin(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	var req adminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	next := strings.TrimSpace(req.Admin)
	err := a.reg.SetContractAdmin(r.Context(), principal, next)
	audit.Outcome(r.Context(), "admin.changed", map[string]any{"admin": next}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admin": next})
}

func (a *API) createGuild(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	var req createGuildRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, err := a.reg.CreateGuild(r.Context(), principal, req.Name, req.Description, req.Stake)
	audit.Outcome(r.Context(), "guild.created", map[string]any{
		"guild_id": id,
		"name":     req.Name,
		"stake":    req.Stake,
	}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	a.respondGuild(w, r, id, http.StatusCreated)
}

func (a *API) guildCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.reg.GuildCount(r.Context())
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guild_count": n})
}

func (a *API) getGuild(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.respondGuild(w, r, id, http.StatusOK)
}

func (a *API) updateGuild(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req updateGuildRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.reg.UpdateGuildInfo(r.Context(), id, principal, guild.GuildUpdate{
		Name:            req.Name,
		Description:     req.Description,
		GovernanceToken: req.GovernanceToken,
	})
	audit.Outcome(r.Context(), "guild.updated", map[string]any{"guild_id": id}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) joinGuild(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req stakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err = a.reg.JoinGuild(r.Context(), id, principal, req.Stake)
	audit.Outcome(r.Context(), "member.joined", map[string]any{"guild_id": id, "stake": req.Stake}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	a.respondMember(w, r, id, principal, http.StatusCreated)
}

func (a *API) leaveGuild(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err = a.reg.LeaveGuild(r.Context(), id, principal)
	audit.Outcome(r.Context(), "member.left", map[string]any{"guild_id": id}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) inviteMember(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req principalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err = a.reg.InviteMember(r.Context(), id, principal, req.Principal)
	audit.Outcome(r.Context(), "member.invited", map[string]any{"guild_id": id, "invitee": req.Principal}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	a.respondMember(w, r, id, req.Principal, http.StatusCreated)
}

func (a *API) contribute(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err = a.reg.ContributeToTreasury(r.Context(), id, principal, req.Amount)
	audit.Outcome(r.Context(), "treasury.contribution", map[string]any{"guild_id": id, "amount": req.Amount}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	a.respondGuild(w, r, id, http.StatusOK)
}

func (a *API) transferOwnership(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req principalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err = a.reg.TransferOwnership(r.Context(), id, principal, req.Principal)
	audit.Outcome(r.Context(), "ownership.transferred", map[string]any{"guild_id": id, "new_owner": req.Principal}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	a.respondGuild(w, r, id, http.StatusOK)
}

func (a *API) awardReputation(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req reputationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err = a.reg.AwardReputation(r.Context(), id, principal, req.Principal, req.Amount)
	audit.Outcome(r.Context(), "reputation.awarded", map[string]any{
		"guild_id": id,
		"member":   req.Principal,
		"amount":   req.Amount,
	}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	a.respondMember(w, r, id, req.Principal, http.StatusOK)
}

func (a *API) getMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.respondMember(w, r, id, r.PathValue("principal"), http.StatusOK)
}

func (a *API) setMemberRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target := r.PathValue("principal")
	err = a.reg.SetMemberRole(r.Context(), id, principal, target, req.Role)
	audit.Outcome(r.Context(), "member.role_changed", map[string]any{
		"guild_id": id,
		"member":   target,
		"role":     uint32(req.Role),
	}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	a.respondMember(w, r, id, target, http.StatusOK)
}

func (a *API) votingPower(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target := r.PathValue("principal")
	power, err := a.reg.VotingPower(r.Context(), id, target)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guild_id":     id,
		"principal":    target,
		"voting_power": power,
	})
}

func (a *API) respondGuild(w http.ResponseWriter, r *http.Request, id uint64, code int) {
	g, err := a.reg.GuildInfo(r.Context(), id)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, code, g)
}

func (a *API) respondMember(w http.ResponseWriter, r *http.Request, id uint64, principal string, code int) {
	m, err := a.reg.MemberInfo(r.Context(), id, principal)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, code, memberView{Member: m, VotingPower: m.VotingPower()})
}

type memberView struct {
	guild.Member
	VotingPower uint64 `json:"voting_power"`
}
