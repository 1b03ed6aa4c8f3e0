package guild

import (
	"context"

	"guildhall.org/internal/obs"
)

// ProposalInput carries the caller-supplied fields of a new proposal.
type ProposalInput struct {
	Title       string
	Description string
	Duration    uint64
	Action      string
	ActionData  []byte
}

func (in ProposalInput) validate() error {
	if err := validText(in.Title, 1, MaxTitleLen); err != nil {
		return err
	}
	if err := validText(in.Description, 0, MaxProposalLen); err != nil {
		return err
	}
	if err := validText(in.Action, 0, MaxActionLen); err != nil {
		return err
	}
	if len(in.ActionData) > MaxActionDataLen {
		return ErrInvalidParameter
	}
	if in.Duration < MinVotingPeriod {
		return ErrInvalidParameter
	}
	return nil
}

// nextItemID post-increments the guild counter shared by proposals and
// assets.
func nextItemID(g *Guild) uint64 {
	id := g.ProposalCounter
	g.ProposalCounter++
	return id
}

// CreateProposal opens a proposal that accepts votes until
// height+duration.
func (r *Registry) CreateProposal(ctx context.Context, guildID uint64, proposer string, in ProposalInput) (uint64, error) {
	if err := validPrincipal(proposer); err != nil {
		return 0, err
	}
	if err := in.validate(); err != nil {
		return 0, err
	}

	var id uint64
	err := r.update(ctx, "create_proposal", func(u *unit) error {
		g, err := loadGuild(u, guildID)
		if err != nil {
			return err
		}
		if _, err := member(u, guildID, proposer); err != nil {
			return err
		}
		expires := u.height + in.Duration
		if expires < u.height {
			return ErrInvalidParameter
		}
		id = nextItemID(&g)
		p := Proposal{
			GuildID:     guildID,
			ID:          id,
			Title:       in.Title,
			Description: in.Description,
			Proposer:    proposer,
			CreatedAt:   u.height,
			ExpiresAt:   expires,
			Status:      StatusActive,
			Action:      in.Action,
			ActionData:  in.ActionData,
		}
		if err := u.PutProposal(p); err != nil {
			return err
		}
		if err := u.PutGuild(g); err != nil {
			return err
		}
		u.emit("proposal.created", guildID, proposer, map[string]any{
			"proposal_id": id,
			"expires_at":  expires,
			"action":      in.Action,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Vote casts the voter's current voting power for or against a proposal.
// The weight is frozen in the vote record; a voter gets exactly one vote per
// proposal and can never change it.
func (r *Registry) Vote(ctx context.Context, guildID, proposalID uint64, voter string, support bool) (VoteRecord, error) {
	if err := validPrincipal(voter); err != nil {
		return VoteRecord{}, err
	}

	var rec VoteRecord
	err := r.update(ctx, "vote_on_proposal", func(u *unit) error {
		if _, err := loadGuild(u, guildID); err != nil {
			return err
		}
		m, err := member(u, guildID, voter)
		if err != nil {
			return err
		}
		p, err := loadProposal(u, guildID, proposalID)
		if err != nil {
			return err
		}
		if p.Status != StatusActive || u.height >= p.ExpiresAt {
			return ErrVotingClosed
		}
		if _, voted, err := u.Vote(guildID, proposalID, voter); err != nil {
			return err
		} else if voted {
			return ErrAlreadyVoted
		}

		rec = VoteRecord{
			GuildID:    guildID,
			ProposalID: proposalID,
			Voter:      voter,
			Support:    support,
			Weight:     m.VotingPower(),
			CastAt:     u.height,
		}
		if support {
			p.YesVotes, err = addQuantity(p.YesVotes, rec.Weight)
		} else {
			p.NoVotes, err = addQuantity(p.NoVotes, rec.Weight)
		}
		if err != nil {
			return err
		}
		if err := u.PutVote(rec); err != nil {
			return err
		}
		if err := u.PutProposal(p); err != nil {
			return err
		}
		u.emit("vote.cast", guildID, voter, map[string]any{
			"proposal_id": proposalID,
			"support":     support,
			"weight":      rec.Weight,
		})
		return nil
	})
	if err != nil {
		return VoteRecord{}, err
	}
	recordVote(rec)
	return rec, nil
}

// FinalizeProposal closes an expired active proposal. Anyone may call it,
// but only once height >= expires_at. The proposal passes when
// yes*100 >= 51*total; with no votes cast it is rejected.
func (r *Registry) FinalizeProposal(ctx context.Context, guildID, proposalID uint64, caller string) (Proposal, error) {
	var out Proposal
	err := r.update(ctx, "finalize_proposal", func(u *unit) error {
		if _, err := loadGuild(u, guildID); err != nil {
			return err
		}
		p, err := loadProposal(u, guildID, proposalID)
		if err != nil {
			return err
		}
		if p.Status != StatusActive || u.height < p.ExpiresAt {
			return ErrVotingClosed
		}
		if p.Passed() {
			p.Status = StatusPassed
		} else {
			p.Status = StatusRejected
		}
		if err := u.PutProposal(p); err != nil {
			return err
		}
		out = p
		u.emit("proposal.finalized", guildID, caller, map[string]any{
			"proposal_id": proposalID,
			"status":      string(p.Status),
			"yes_votes":   p.YesVotes,
			"no_votes":    p.NoVotes,
			"yes_percent": p.YesPercent(),
		})
		return nil
	})
	if err != nil {
		return Proposal{}, err
	}
	recordFinalized(out.Status)
	return out, nil
}

// ExecuteProposal marks a passed proposal executed. The action and payload
// are published for an external executor; the registry does not interpret
// them. Admin or higher.
func (r *Registry) ExecuteProposal(ctx context.Context, guildID, proposalID uint64, caller string) (Proposal, error) {
	if err := validPrincipal(caller); err != nil {
		return Proposal{}, err
	}
	var out Proposal
	err := r.update(ctx, "execute_proposal", func(u *unit) error {
		if _, err := loadGuild(u, guildID); err != nil {
			return err
		}
		if err := requireRole(u, guildID, caller, RoleAdmin); err != nil {
			return err
		}
		p, err := loadProposal(u, guildID, proposalID)
		if err != nil {
			return err
		}
		if p.Status != StatusPassed || p.Executed {
			return ErrProposalNotPassed
		}
		p.Executed = true
		p.Status = StatusExecuted
		if err := u.PutProposal(p); err != nil {
			return err
		}
		out = p
		u.emit("proposal.executed", guildID, caller, map[string]any{
			"proposal_id": proposalID,
			"action":      p.Action,
			"action_data": p.ActionData,
		})
		return nil
	})
	return out, err
}

// Proposal returns the proposal record.
func (r *Registry) Proposal(ctx context.Context, guildID, proposalID uint64) (Proposal, error) {
	var p Proposal
	err := r.view(ctx, "get_proposal", func(tx Tx) error {
		var err error
		p, err = loadProposal(tx, guildID, proposalID)
		return err
	})
	return p, err
}

// HasVoted reports whether voter already voted on the proposal.
func (r *Registry) HasVoted(ctx context.Context, guildID, proposalID uint64, voter string) (bool, error) {
	var ok bool
	err := r.view(ctx, "has_voted", func(tx Tx) error {
		var err error
		_, ok, err = tx.Vote(guildID, proposalID, voter)
		return err
	})
	return ok, err
}

// VoteOf returns the vote record of voter, if any.
func (r *Registry) VoteOf(ctx context.Context, guildID, proposalID uint64, voter string) (VoteRecord, bool, error) {
	var (
		rec VoteRecord
		ok  bool
	)
	err := r.view(ctx, "get_vote", func(tx Tx) error {
		var err error
		rec, ok, err = tx.Vote(guildID, proposalID, voter)
		return err
	})
	return rec, ok, err
}

func loadProposal(tx Tx, guildID, proposalID uint64) (Proposal, error) {
	p, ok, err := tx.Proposal(guildID, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if !ok {
		return Proposal{}, ErrProposalNotFound
	}
	return p, nil
}

func recordVote(rec VoteRecord) {
	obs.RecordVote(rec.Support, rec.Weight)
}

func recordFinalized(status ProposalStatus) {
	obs.RecordFinalized(string(status))
}
