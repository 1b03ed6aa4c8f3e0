package httpapi

import (
	"net/http"

	"guildhall.org/internal/audit"
	"guildhall.org/internal/guild"
)

type createProposalRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    uint64 `json:"duration"`
	Action      string `json:"action"`
	ActionData  []byte `json:"action_data"`
}

type voteRequest struct {
	Support *bool `json:"support"`
}

type voteStatus struct {
	HasVoted bool              `json:"has_voted"`
	Vote     *guild.VoteRecord `json:"vote,omitempty"`
}

func proposalPath(w http.ResponseWriter, r *http.Request) (uint64, uint64, bool) {
	gid, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	pid, err := pathUint(r, "pid")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return gid, pid, true
}

func (a *API) createProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	gid, err := pathUint(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req createProposalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pid, err := a.reg.CreateProposal(r.Context(), gid, principal, guild.ProposalInput{
		Title:       req.Title,
		Description: req.Description,
		Duration:    req.Duration,
		Action:      req.Action,
		ActionData:  req.ActionData,
	})
	audit.Outcome(r.Context(), "proposal.created", map[string]any{
		"guild_id":    gid,
		"proposal_id": pid,
		"duration":    req.Duration,
		"action":      req.Action,
	}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	a.respondProposal(w, r, gid, pid, http.StatusCreated)
}

func (a *API) getProposal(w http.ResponseWriter, r *http.Request) {
	gid, pid, ok := proposalPath(w, r)
	if !ok {
		return
	}
	a.respondProposal(w, r, gid, pid, http.StatusOK)
}

func (a *API) vote(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	gid, pid, ok := proposalPath(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Support == nil {
		writeError(w, r, http.StatusBadRequest, "support is required")
		return
	}
	rec, err := a.reg.Vote(r.Context(), gid, pid, principal, *req.Support)
	audit.Outcome(r.Context(), "vote.cast", map[string]any{
		"guild_id":    gid,
		"proposal_id": pid,
		"support":     *req.Support,
		"weight":      rec.Weight,
	}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) getVote(w http.ResponseWriter, r *http.Request) {
	gid, pid, ok := proposalPath(w, r)
	if !ok {
		return
	}
	rec, voted, err := a.reg.VoteOf(r.Context(), gid, pid, r.PathValue("principal"))
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	out := voteStatus{HasVoted: voted}
	if voted {
		out.Vote = &rec
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) finalizeProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	gid, pid, ok := proposalPath(w, r)
	if !ok {
		return
	}
	p, err := a.reg.FinalizeProposal(r.Context(), gid, pid, principal)
	audit.Outcome(r.Context(), "proposal.finalized", map[string]any{
		"guild_id":    gid,
		"proposal_id": pid,
		"status":      string(p.Status),
	}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proposalView(p))
}

func (a *API) executeProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := caller(w, r)
	if !ok {
		return
	}
	gid, pid, ok := proposalPath(w, r)
	if !ok {
		return
	}
	p, err := a.reg.ExecuteProposal(r.Context(), gid, pid, principal)
	audit.Outcome(r.Context(), "proposal.executed", map[string]any{
		"guild_id":    gid,
		"proposal_id": pid,
		"action":      p.Action,
	}, err)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proposalView(p))
}

func (a *API) respondProposal(w http.ResponseWriter, r *http.Request, gid, pid uint64, code int) {
	p, err := a.reg.Proposal(r.Context(), gid, pid)
	if err != nil {
		handleGuildError(w, r, err)
		return
	}
	writeJSON(w, code, proposalView(p))
}

type proposalResponse struct {
	guild.Proposal
	YesPercent uint64 `json:"yes_percent"`
}

func proposalView(p guild.Proposal) proposalResponse {
	return proposalResponse{Proposal: p, YesPercent: p.YesPercent()}
}
