package guild_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildhall.org/internal/guild"
	"guildhall.org/internal/store/memory"
)

// setTally overwrites a proposal's tallies in the store.
func (f *fixture) setTally(t *testing.T, guildID, pid, yes, no uint64) {
	t.Helper()
	err := f.store.Update(context.Background(), func(tx guild.Tx) error {
		p, ok, err := tx.Proposal(guildID, pid)
		if err != nil {
			return err
		}
		if !ok {
			return guild.ErrProposalNotFound
		}
		p.YesVotes, p.NoVotes = yes, no
		return tx.PutProposal(p)
	})
	require.NoError(t, err)
}

func TestFinalizeThreshold(t *testing.T) {
	const q = guild.MaxQuantity
	tests := []struct {
		name    string
		yes, no uint64
		want    guild.ProposalStatus
	}{
		{"51 of 100 passes", 51, 49, guild.StatusPassed},
		{"even split is rejected", 50, 50, guild.StatusRejected},
		{"no votes is rejected", 0, 0, guild.StatusRejected},
		{"single yes passes", 1, 0, guild.StatusPassed},
		{"unanimous at max tally passes", q, 0, guild.StatusPassed},
		{"even split at max tally is rejected", q, q, guild.StatusRejected},
		{"51 percent of large tallies passes", q / 100 * 51, q / 100 * 49, guild.StatusPassed},
		{"just under 51 percent of large tallies is rejected", q/100*51 - 1, q / 100 * 49, guild.StatusRejected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			id := f.withGuild(t)

			pid, err := f.reg.CreateProposal(ctx, id, founder, guild.ProposalInput{Title: "t", Duration: guild.MinVotingPeriod})
			require.NoError(t, err)
			f.setTally(t, id, pid, tc.yes, tc.no)
			f.advance(t, guild.MinVotingPeriod)

			p, err := f.reg.FinalizeProposal(ctx, id, pid, bob)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Status)
		})
	}
}

func TestPassedAndYesPercentDoNotWrap(t *testing.T) {
	p := guild.Proposal{YesVotes: math.MaxUint64}
	assert.True(t, p.Passed())
	assert.Equal(t, uint64(100), p.YesPercent())

	p = guild.Proposal{YesVotes: math.MaxUint64, NoVotes: math.MaxUint64}
	assert.False(t, p.Passed())
	assert.Equal(t, uint64(50), p.YesPercent())

	p = guild.Proposal{YesVotes: 184467440737095526}
	assert.True(t, p.Passed())
	assert.Equal(t, uint64(100), p.YesPercent())
}

func TestLargeReputationVoteStillPasses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.withGuild(t)

	g, err := f.reg.GuildInfo(ctx, id)
	require.NoError(t, err)

	err = f.reg.AwardReputation(ctx, id, founder, bob, math.MaxUint64-g.ReputationScore)
	require.ErrorIs(t, err, guild.ErrInvalidParameter)

	award := guild.MaxQuantity - g.ReputationScore
	require.NoError(t, f.reg.AwardReputation(ctx, id, founder, bob, award))
	err = f.reg.AwardReputation(ctx, id, founder, founder, 1)
	require.ErrorIs(t, err, guild.ErrInvalidParameter, "guild score is at its bound")

	pid, err := f.reg.CreateProposal(ctx, id, founder, guild.ProposalInput{Title: "t", Duration: guild.MinVotingPeriod})
	require.NoError(t, err)
	rec, err := f.reg.Vote(ctx, id, pid, bob, true)
	require.NoError(t, err)
	assert.Equal(t, 1+uint64(guild.TierMember)*10+award/100, rec.Weight)

	f.advance(t, guild.MinVotingPeriod)
	p, err := f.reg.FinalizeProposal(ctx, id, pid, bob)
	require.NoError(t, err)
	assert.Equal(t, guild.StatusPassed, p.Status)
	assert.Equal(t, uint64(100), p.YesPercent())
}

func TestVoteRejectsTallyOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.withGuild(t)

	pid, err := f.reg.CreateProposal(ctx, id, founder, guild.ProposalInput{Title: "t", Duration: guild.MinVotingPeriod})
	require.NoError(t, err)
	f.setTally(t, id, pid, guild.MaxQuantity, 0)

	_, err = f.reg.Vote(ctx, id, pid, bob, true)
	require.ErrorIs(t, err, guild.ErrInvalidParameter)

	voted, err := f.reg.HasVoted(ctx, id, pid, bob)
	require.NoError(t, err)
	assert.False(t, voted, "a rejected vote leaves no record")
	p, err := f.reg.Proposal(ctx, id, pid)
	require.NoError(t, err)
	assert.Equal(t, guild.MaxQuantity, p.YesVotes)

	_, err = f.reg.Vote(ctx, id, pid, bob, false)
	require.NoError(t, err)
}

func TestAddAssetBoundsValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.withGuild(t)

	_, err := f.reg.AddAsset(ctx, id, founder, guild.AssetSpec{Name: "Vault", Value: guild.MaxQuantity + 1})
	require.ErrorIs(t, err, guild.ErrInvalidParameter)

	aid, err := f.reg.AddAsset(ctx, id, founder, guild.AssetSpec{Name: "Vault", Value: guild.MaxQuantity})
	require.NoError(t, err)
	a, err := f.reg.AssetInfo(ctx, id, aid)
	require.NoError(t, err)
	assert.Equal(t, guild.MaxQuantity, a.Value)
}

func TestConcurrentJoinsAndVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.withGuild(t)

	pid, err := f.reg.CreateProposal(ctx, id, founder, guild.ProposalInput{Title: "t", Duration: guild.MinVotingPeriod})
	require.NoError(t, err)

	const joiners = 16
	var (
		wg       sync.WaitGroup
		bobVotes atomic.Int64
		errs     = make(chan error, 2*joiners)
	)
	for i := range joiners {
		wg.Add(2)
		go func(principal string, support bool) {
			defer wg.Done()
			if err := f.reg.JoinGuild(ctx, id, principal, stake); err != nil {
				errs <- err
				return
			}
			if _, err := f.reg.Vote(ctx, id, pid, principal, support); err != nil {
				errs <- err
			}
		}(fmt.Sprintf("joiner-%02d", i), i%2 == 0)
		go func() {
			defer wg.Done()
			_, err := f.reg.Vote(ctx, id, pid, bob, true)
			switch {
			case err == nil:
				bobVotes.Add(1)
			case !errors.Is(err, guild.ErrAlreadyVoted):
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call failed: %v", err)
	}

	assert.Equal(t, int64(1), bobVotes.Load(), "bob votes exactly once")

	g, err := f.reg.GuildInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2+joiners), g.MemberCount)
	assert.Equal(t, int64(stake)*(2+joiners), g.TreasuryBalance)

	p, err := f.reg.Proposal(ctx, id, pid)
	require.NoError(t, err)
	assert.Equal(t, uint64(joiners/2*11+11), p.YesVotes)
	assert.Equal(t, uint64(joiners/2*11), p.NoVotes)
}

// stepHeight reports a higher height on every read.
type stepHeight struct{ n atomic.Uint64 }

func (s *stepHeight) Height(context.Context) (uint64, error) {
	return s.n.Add(1), nil
}

func TestHeightStampsFollowCommitOrder(t *testing.T) {
	ctx := context.Background()
	reg, err := guild.NewRegistry(memory.New(), &stepHeight{})
	require.NoError(t, err)
	require.NoError(t, reg.Init(ctx, "deployer"))
	id, err := reg.CreateGuild(ctx, founder, "Smiths", "", stake)
	require.NoError(t, err)

	const proposals = 32
	var wg sync.WaitGroup
	for range proposals {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.CreateProposal(ctx, id, founder, guild.ProposalInput{Title: "t", Duration: guild.MinVotingPeriod})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var last uint64
	for pid := range uint64(proposals) {
		p, err := reg.Proposal(ctx, id, pid)
		require.NoError(t, err)
		assert.Greater(t, p.CreatedAt, last, "proposal %d stamped out of commit order", pid)
		last = p.CreatedAt
	}
}
