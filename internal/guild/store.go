package guild

import "context"

// Store runs units of work atomically. Update calls are serialised by the
// implementation and nothing written inside fn survives if fn returns an
// error.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the typed view of the registry state inside one unit of work. Every
// key includes the guild id, so guilds never share records.
type Tx interface {
	Contract() (ContractState, error)
	PutContract(cs ContractState) error

	Guild(id uint64) (Guild, bool, error)
	PutGuild(g Guild) error

	Member(guildID uint64, principal string) (Member, bool, error)
	PutMember(m Member) error
	DeleteMember(guildID uint64, principal string) error

	Proposal(guildID, id uint64) (Proposal, bool, error)
	PutProposal(p Proposal) error

	Vote(guildID, proposalID uint64, voter string) (VoteRecord, bool, error)
	PutVote(v VoteRecord) error

	Asset(guildID, id uint64) (Asset, bool, error)
	PutAsset(a Asset) error

	Permission(guildID, assetID uint64, role Role) (Permission, bool, error)
	PutPermission(p Permission) error
}

// HeightSource supplies the monotonically increasing chain height.
type HeightSource interface {
	Height(ctx context.Context) (uint64, error)
}

// Event describes a committed state change.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	GuildID   uint64         `json:"guild_id,omitempty"`
	Principal string         `json:"principal,omitempty"`
	Height    uint64         `json:"height"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventSink receives events after their unit of work commits.
type EventSink interface {
	Publish(evt Event)
}
