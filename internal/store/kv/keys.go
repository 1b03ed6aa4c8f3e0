package kv

import (
	"encoding/binary"

	"guildhall.org/internal/guild"
)

// Key prefixes. Every record below the contract key is scoped by a
// big-endian guild id so a prefix scan over one guild stays contiguous.
const (
	prefixContract   = 'c'
	prefixGuild      = 'g'
	prefixMember     = 'm'
	prefixProposal   = 'p'
	prefixVote       = 'v'
	prefixAsset      = 'a'
	prefixPermission = 'r'
)

func key(prefix byte, guildID uint64, rest ...[]byte) []byte {
	n := 9
	for _, r := range rest {
		n += len(r)
	}
	k := make([]byte, 0, n)
	k = append(k, prefix)
	k = binary.BigEndian.AppendUint64(k, guildID)
	for _, r := range rest {
		k = append(k, r...)
	}
	return k
}

func u64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func ContractKey() []byte { return []byte{prefixContract} }

func GuildKey(id uint64) []byte { return key(prefixGuild, id) }

func MemberKey(guildID uint64, principal string) []byte {
	return key(prefixMember, guildID, []byte(principal))
}

func ProposalKey(guildID, id uint64) []byte {
	return key(prefixProposal, guildID, u64(id))
}

// VoteKey places the voter after the fixed-width proposal id, so voters
// cannot collide across proposals.
func VoteKey(guildID, proposalID uint64, voter string) []byte {
	return key(prefixVote, guildID, u64(proposalID), []byte(voter))
}

func AssetKey(guildID, id uint64) []byte {
	return key(prefixAsset, guildID, u64(id))
}

func PermissionKey(guildID, assetID uint64, role guild.Role) []byte {
	return key(prefixPermission, guildID, u64(assetID), binary.BigEndian.AppendUint32(nil, uint32(role)))
}
