// Package kv implements guild.Tx over any transactional byte-keyed bucket.
// Records are CBOR encoded; the memory and badger stores share it.
package kv

import (
	"guildhall.org/internal/guild"
)

// Bucket is the raw key-value surface of one open transaction.
type Bucket interface {
	// Get returns the value stored under key; found is false when absent.
	Get(key []byte) (val []byte, found bool, err error)
	Set(key, val []byte) error
	Delete(key []byte) error
}

// Tx adapts a Bucket to guild.Tx.
type Tx struct {
	b Bucket
}

var _ guild.Tx = (*Tx)(nil)

// NewTx wraps b.
func NewTx(b Bucket) *Tx {
	return &Tx{b: b}
}

func get[T any](b Bucket, k []byte) (T, bool, error) {
	var v T
	raw, ok, err := b.Get(k)
	if err != nil || !ok {
		return v, false, err
	}
	if err := Unmarshal(raw, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func put(b Bucket, k []byte, v any) error {
	raw, err := Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(k, raw)
}

func (t *Tx) Contract() (guild.ContractState, error) {
	cs, _, err := get[guild.ContractState](t.b, ContractKey())
	return cs, err
}

func (t *Tx) PutContract(cs guild.ContractState) error {
	return put(t.b, ContractKey(), cs)
}

func (t *Tx) Guild(id uint64) (guild.Guild, bool, error) {
	return get[guild.Guild](t.b, GuildKey(id))
}

func (t *Tx) PutGuild(g guild.Guild) error {
	return put(t.b, GuildKey(g.ID), g)
}

func (t *Tx) Member(guildID uint64, principal string) (guild.Member, bool, error) {
	return get[guild.Member](t.b, MemberKey(guildID, principal))
}

func (t *Tx) PutMember(m guild.Member) error {
	return put(t.b, MemberKey(m.GuildID, m.Principal), m)
}

func (t *Tx) DeleteMember(guildID uint64, principal string) error {
	return t.b.Delete(MemberKey(guildID, principal))
}

func (t *Tx) Proposal(guildID, id uint64) (guild.Proposal, bool, error) {
	return get[guild.Proposal](t.b, ProposalKey(guildID, id))
}

func (t *Tx) PutProposal(p guild.Proposal) error {
	return put(t.b, ProposalKey(p.GuildID, p.ID), p)
}

func (t *Tx) Vote(guildID, proposalID uint64, voter string) (guild.VoteRecord, bool, error) {
	return get[guild.VoteRecord](t.b, VoteKey(guildID, proposalID, voter))
}

func (t *Tx) PutVote(v guild.VoteRecord) error {
	return put(t.b, VoteKey(v.GuildID, v.ProposalID, v.Voter), v)
}

func (t *Tx) Asset(guildID, id uint64) (guild.Asset, bool, error) {
	return get[guild.Asset](t.b, AssetKey(guildID, id))
}

func (t *Tx) PutAsset(a guild.Asset) error {
	return put(t.b, AssetKey(a.GuildID, a.ID), a)
}

func (t *Tx) Permission(guildID, assetID uint64, role guild.Role) (guild.Permission, bool, error) {
	return get[guild.Permission](t.b, PermissionKey(guildID, assetID, role))
}

func (t *Tx) PutPermission(p guild.Permission) error {
	return put(t.b, PermissionKey(p.GuildID, p.AssetID, p.Role), p)
}
