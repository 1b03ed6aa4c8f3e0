package memory

import (
	"context"
	"errors"
	"testing"

	"guildhall.org/internal/guild"
)

func TestFailedUpdateWritesNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx guild.Tx) error {
		if err := tx.PutGuild(guild.Guild{ID: 1, Name: "Smiths"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = s.View(ctx, func(tx guild.Tx) error {
		if _, ok, err := tx.Guild(1); err != nil || ok {
			t.Fatalf("guild survived rollback: ok=%v err=%v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestUpdateSeesOwnWritesAndDeletes(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := guild.Member{GuildID: 1, Principal: "bob", Role: guild.RoleMember}

	if err := s.Update(ctx, func(tx guild.Tx) error { return tx.PutMember(m) }); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := s.Update(ctx, func(tx guild.Tx) error {
		if err := tx.DeleteMember(1, "bob"); err != nil {
			return err
		}
		if _, ok, _ := tx.Member(1, "bob"); ok {
			t.Fatalf("delete not visible inside the transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	_ = s.View(ctx, func(tx guild.Tx) error {
		if _, ok, _ := tx.Member(1, "bob"); ok {
			t.Fatalf("delete not committed")
		}
		return nil
	})
}

func TestViewIsReadOnly(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(tx guild.Tx) error {
		return tx.PutContract(guild.ContractState{Admin: "x"})
	})
	if !errors.Is(err, errReadOnly) {
		t.Fatalf("expected read-only error, got %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	s := New()
	_ = s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
