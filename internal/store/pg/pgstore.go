// Package pg stores the registry in PostgreSQL through the pgx stdlib
// driver. Each unit of work is one SERIALIZABLE transaction and every row
// read inside a write transaction is locked with "for update".
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"guildhall.org/internal/guild"
)

const defaultConflictRetries = 3

type Store struct {
	db      *sql.DB
	retries int
}

var _ guild.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithConflictRetries bounds how often a serialization failure is re-run
// before guild.ErrConflict is returned.
func WithConflictRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.retries = n
		}
	}
}

func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an already opened database handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, retries: defaultConflictRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Update(ctx context.Context, fn func(guild.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.run(ctx, false, fn)
		if !retryable(err) {
			return mapError(err)
		}
		if attempt >= s.retries {
			return guild.ErrConflict
		}
	}
}

func (s *Store) View(ctx context.Context, fn func(guild.Tx) error) error {
	return mapError(s.run(ctx, true, fn))
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(guild.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&tx{ctx: ctx, tx: sqlTx, lock: !readOnly}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// tx implements guild.Tx on one database transaction.
type tx struct {
	ctx  context.Context
	tx   *sql.Tx
	lock bool
}

func (t *tx) forUpdate(q string) string {
	if t.lock {
		return q + " for update"
	}
	return q
}

func (t *tx) Contract() (guild.ContractState, error) {
	var cs guild.ContractState
	err := t.tx.QueryRowContext(t.ctx, t.forUpdate(`select admin, guild_count from contract_state where id = 1`)).
		Scan(&cs.Admin, &cs.GuildCount)
	if errors.Is(err, sql.ErrNoRows) {
		return guild.ContractState{}, nil
	}
	return cs, err
}

func (t *tx) PutContract(cs guild.ContractState) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into contract_state (id, admin, guild_count) values (1, $1, $2)
		on conflict (id) do update set admin = excluded.admin, guild_count = excluded.guild_count
	`, cs.Admin, cs.GuildCount)
	return err
}

func (t *tx) Guild(id uint64) (guild.Guild, bool, error) {
	var g guild.Guild
	err := t.tx.QueryRowContext(t.ctx, t.forUpdate(`
		select id, name, description, founder, created_at, required_stake, member_count,
		       treasury_balance, reputation_score, governance_token, proposal_counter
		from guilds where id = $1`), id).
		Scan(&g.ID, &g.Name, &g.Description, &g.Founder, &g.CreatedAt, &g.RequiredStake, &g.MemberCount,
			&g.TreasuryBalance, &g.ReputationScore, &g.GovernanceToken, &g.ProposalCounter)
	return found(g, err)
}

func (t *tx) PutGuild(g guild.Guild) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into guilds (id, name, description, founder, created_at, required_stake, member_count,
		                    treasury_balance, reputation_score, governance_token, proposal_counter)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (id) do update set
			name = excluded.name,
			description = excluded.description,
			founder = excluded.founder,
			member_count = excluded.member_count,
			treasury_balance = excluded.treasury_balance,
			reputation_score = excluded.reputation_score,
			governance_token = excluded.governance_token,
			proposal_counter = excluded.proposal_counter
	`, g.ID, g.Name, g.Description, g.Founder, g.CreatedAt, g.RequiredStake, g.MemberCount,
		g.TreasuryBalance, g.ReputationScore, g.GovernanceToken, g.ProposalCounter)
	return err
}

func (t *tx) Member(guildID uint64, principal string) (guild.Member, bool, error) {
	var m guild.Member
	err := t.tx.QueryRowContext(t.ctx, t.forUpdate(`
		select guild_id, principal, joined_at, role, tier, contribution, reputation
		from members where guild_id = $1 and principal = $2`), guildID, principal).
		Scan(&m.GuildID, &m.Principal, &m.JoinedAt, &m.Role, &m.Tier, &m.Contribution, &m.Reputation)
	return found(m, err)
}

func (t *tx) PutMember(m guild.Member) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into members (guild_id, principal, joined_at, role, tier, contribution, reputation)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (guild_id, principal) do update set
			role = excluded.role,
			tier = excluded.tier,
			contribution = excluded.contribution,
			reputation = excluded.reputation
	`, m.GuildID, m.Principal, m.JoinedAt, uint32(m.Role), uint32(m.Tier), m.Contribution, m.Reputation)
	return err
}

func (t *tx) DeleteMember(guildID uint64, principal string) error {
	_, err := t.tx.ExecContext(t.ctx, `delete from members where guild_id = $1 and principal = $2`, guildID, principal)
	return err
}

func (t *tx) Proposal(guildID, id uint64) (guild.Proposal, bool, error) {
	var (
		p      guild.Proposal
		status string
	)
	err := t.tx.QueryRowContext(t.ctx, t.forUpdate(`
		select guild_id, id, title, description, proposer, created_at, expires_at, status,
		       yes_votes, no_votes, executed, action, action_data
		from proposals where guild_id = $1 and id = $2`), guildID, id).
		Scan(&p.GuildID, &p.ID, &p.Title, &p.Description, &p.Proposer, &p.CreatedAt, &p.ExpiresAt, &status,
			&p.YesVotes, &p.NoVotes, &p.Executed, &p.Action, &p.ActionData)
	p.Status = guild.ProposalStatus(status)
	return found(p, err)
}

func (t *tx) PutProposal(p guild.Proposal) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into proposals (guild_id, id, title, description, proposer, created_at, expires_at, status,
		                       yes_votes, no_votes, executed, action, action_data)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		on conflict (guild_id, id) do update set
			status = excluded.status,
			yes_votes = excluded.yes_votes,
			no_votes = excluded.no_votes,
			executed = excluded.executed
	`, p.GuildID, p.ID, p.Title, p.Description, p.Proposer, p.CreatedAt, p.ExpiresAt, string(p.Status),
		p.YesVotes, p.NoVotes, p.Executed, p.Action, p.ActionData)
	return err
}

func (t *tx) Vote(guildID, proposalID uint64, voter string) (guild.VoteRecord, bool, error) {
	var v guild.VoteRecord
	err := t.tx.QueryRowContext(t.ctx, t.forUpdate(`
		select guild_id, proposal_id, voter, support, weight, cast_at
		from votes where guild_id = $1 and proposal_id = $2 and voter = $3`), guildID, proposalID, voter).
		Scan(&v.GuildID, &v.ProposalID, &v.Voter, &v.Support, &v.Weight, &v.CastAt)
	return found(v, err)
}

// PutVote never overwrites: a vote is immutable once cast.
func (t *tx) PutVote(v guild.VoteRecord) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into votes (guild_id, proposal_id, voter, support, weight, cast_at)
		values ($1,$2,$3,$4,$5,$6)
	`, v.GuildID, v.ProposalID, v.Voter, v.Support, v.Weight, v.CastAt)
	return err
}

func (t *tx) Asset(guildID, id uint64) (guild.Asset, bool, error) {
	var a guild.Asset
	err := t.tx.QueryRowContext(t.ctx, t.forUpdate(`
		select guild_id, id, name, type, owner, value, metadata, transferable
		from assets where guild_id = $1 and id = $2`), guildID, id).
		Scan(&a.GuildID, &a.ID, &a.Name, &a.Type, &a.Owner, &a.Value, &a.Metadata, &a.Transferable)
	return found(a, err)
}

func (t *tx) PutAsset(a guild.Asset) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into assets (guild_id, id, name, type, owner, value, metadata, transferable)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict (guild_id, id) do update set
			name = excluded.name,
			type = excluded.type,
			owner = excluded.owner,
			value = excluded.value,
			metadata = excluded.metadata,
			transferable = excluded.transferable
	`, a.GuildID, a.ID, a.Name, a.Type, a.Owner, a.Value, a.Metadata, a.Transferable)
	return err
}

func (t *tx) Permission(guildID, assetID uint64, role guild.Role) (guild.Permission, bool, error) {
	var p guild.Permission
	err := t.tx.QueryRowContext(t.ctx, t.forUpdate(`
		select guild_id, asset_id, role, can_use, can_manage, can_transfer
		from permissions where guild_id = $1 and asset_id = $2 and role = $3`), guildID, assetID, uint32(role)).
		Scan(&p.GuildID, &p.AssetID, &p.Role, &p.CanUse, &p.CanManage, &p.CanTransfer)
	return found(p, err)
}

func (t *tx) PutPermission(p guild.Permission) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into permissions (guild_id, asset_id, role, can_use, can_manage, can_transfer)
		values ($1,$2,$3,$4,$5,$6)
		on conflict (guild_id, asset_id, role) do update set
			can_use = excluded.can_use,
			can_manage = excluded.can_manage,
			can_transfer = excluded.can_transfer
	`, p.GuildID, p.AssetID, uint32(p.Role), p.CanUse, p.CanManage, p.CanTransfer)
	return err
}

func found[T any](v T, err error) (T, bool, error) {
	var zero T
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}
