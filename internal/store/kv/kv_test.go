package kv

import (
	"bytes"
	"testing"

	"guildhall.org/internal/guild"
)

type mapBucket map[string][]byte

func (m mapBucket) Get(k []byte) ([]byte, bool, error) {
	v, ok := m[string(k)]
	return v, ok, nil
}

func (m mapBucket) Set(k, v []byte) error {
	m[string(k)] = v
	return nil
}

func (m mapBucket) Delete(k []byte) error {
	delete(m, string(k))
	return nil
}

func TestTxStoresRecords(t *testing.T) {
	tx := NewTx(mapBucket{})

	cs, err := tx.Contract()
	if err != nil {
		t.Fatalf("contract on empty bucket: %v", err)
	}
	if cs.Admin != "" || cs.GuildCount != 0 {
		t.Fatalf("expected zero contract state, got %+v", cs)
	}

	m := guild.Member{GuildID: 7, Principal: "alice", Role: guild.RoleAdmin, Tier: guild.TierMember, Reputation: 42}
	if err := tx.PutMember(m); err != nil {
		t.Fatalf("put member: %v", err)
	}
	got, ok, err := tx.Member(7, "alice")
	if err != nil || !ok {
		t.Fatalf("member lookup: ok=%v err=%v", ok, err)
	}
	if got != m {
		t.Fatalf("member mismatch: %+v vs %+v", got, m)
	}
	if _, ok, _ := tx.Member(8, "alice"); ok {
		t.Fatalf("membership leaked across guilds")
	}

	if err := tx.DeleteMember(7, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := tx.Member(7, "alice"); ok {
		t.Fatalf("member still present after delete")
	}

	p := guild.Proposal{GuildID: 7, ID: 3, Title: "t", ActionData: []byte{1, 2, 3}, Status: guild.StatusActive}
	if err := tx.PutProposal(p); err != nil {
		t.Fatalf("put proposal: %v", err)
	}
	gotP, ok, err := tx.Proposal(7, 3)
	if err != nil || !ok {
		t.Fatalf("proposal lookup: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(gotP.ActionData, p.ActionData) || gotP.Status != guild.StatusActive {
		t.Fatalf("proposal mismatch: %+v", gotP)
	}
}

func TestKeysDoNotCollide(t *testing.T) {
	// Proposal ids are fixed width, so the voter suffix cannot shift into them.
	a := VoteKey(1, 1, "0")
	b := VoteKey(1, 10, "")
	if bytes.Equal(a, b) {
		t.Fatalf("vote keys collided")
	}
	if bytes.Equal(PermissionKey(1, 2, guild.RoleAdmin), PermissionKey(1, 2, guild.RoleMember)) {
		t.Fatalf("permission keys collided")
	}
	if bytes.Equal(AssetKey(1, 2), ProposalKey(1, 2)) {
		t.Fatalf("asset and proposal keys share a namespace")
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	g := guild.Guild{ID: 1, Name: "Smiths", Founder: "alice", TreasuryBalance: 1_000_000}
	a, err := Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding not deterministic")
	}
}
