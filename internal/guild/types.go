package guild

import (
	"math"
	"math/bits"
)

// Role is an ordinal privilege level. Comparisons are numeric: "admin or
// higher" is role >= RoleAdmin.
type Role uint32

const (
	RoleGuest  Role = 1
	RoleMember Role = 10
	RoleAdmin  Role = 50
	RoleOwner  Role = 100
)

// Valid reports whether r is one of the named roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleMember, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	}
	return "custom"
}

// Tier is the membership seniority class feeding voting power.
type Tier uint32

const (
	TierMember  Tier = 1
	TierVeteran Tier = 2
	TierFounder Tier = 3
)

// ProposalStatus moves one way: active -> passed|rejected, passed -> executed.
type ProposalStatus string

const (
	StatusActive   ProposalStatus = "active"
	StatusPassed   ProposalStatus = "passed"
	StatusRejected ProposalStatus = "rejected"
	StatusExecuted ProposalStatus = "executed"
)

const (
	// RequiredStakeAmount is the minimum stake to found a guild.
	RequiredStakeAmount uint64 = 1_000_000
	// MinVotingPeriod is the shortest proposal duration, in height units.
	MinVotingPeriod uint64 = 144
	// PassThresholdPercent is the yes share a proposal needs to pass.
	PassThresholdPercent uint64 = 51
	// MaxQuantity bounds every stored amount, reputation, tally and asset
	// value so it fits a signed 64-bit column.
	MaxQuantity uint64 = math.MaxInt64

	founderReputation    uint64 = 100
	reputationPerUnit    uint64 = 100
	votingPowerTierScale uint64 = 10
)

// Field limits.
const (
	MaxPrincipalLen   = 128
	MaxNameLen        = 64
	MaxDescriptionLen = 256
	MaxTitleLen       = 64
	MaxProposalLen    = 500
	MaxActionLen      = 64
	MaxActionDataLen  = 1024
	MaxAssetTypeLen   = 32
	MaxMetadataLen    = 256
	MaxTokenRefLen    = 128
)

// ContractState is the process-wide configuration: the contract
// administrator and the global guild counter.
type ContractState struct {
	Admin      string `json:"admin" cbor:"admin"`
	GuildCount uint64 `json:"guild_count" cbor:"guild_count"`
}

// Guild is the registry record. ProposalCounter allocates both proposal and
// asset ids, so the two id spaces overlap.
type Guild struct {
	ID              uint64 `json:"id" cbor:"id"`
	Name            string `json:"name" cbor:"name"`
	Description     string `json:"description" cbor:"description"`
	Founder         string `json:"founder" cbor:"founder"`
	CreatedAt       uint64 `json:"created_at" cbor:"created_at"`
	RequiredStake   uint64 `json:"required_stake" cbor:"required_stake"`
	MemberCount     uint64 `json:"member_count" cbor:"member_count"`
	TreasuryBalance int64  `json:"treasury_balance" cbor:"treasury_balance"`
	ReputationScore uint64 `json:"reputation_score" cbor:"reputation_score"`
	GovernanceToken string `json:"governance_token,omitempty" cbor:"governance_token,omitempty"`
	ProposalCounter uint64 `json:"active_proposal_count" cbor:"proposal_counter"`
}

// Member is keyed by (guild, principal).
type Member struct {
	GuildID      uint64 `json:"guild_id" cbor:"guild_id"`
	Principal    string `json:"principal" cbor:"principal"`
	JoinedAt     uint64 `json:"joined_at" cbor:"joined_at"`
	Role         Role   `json:"role" cbor:"role"`
	Tier         Tier   `json:"tier" cbor:"tier"`
	Contribution uint64 `json:"contribution" cbor:"contribution"`
	Reputation   uint64 `json:"reputation" cbor:"reputation"`
}

// VotingPower is 1 + tier*10 + reputation/100.
func (m Member) VotingPower() uint64 {
	return 1 + uint64(m.Tier)*votingPowerTierScale + m.Reputation/reputationPerUnit
}

// Proposal is keyed by (guild, id).
type Proposal struct {
	GuildID     uint64         `json:"guild_id" cbor:"guild_id"`
	ID          uint64         `json:"id" cbor:"id"`
	Title       string         `json:"title" cbor:"title"`
	Description string         `json:"description" cbor:"description"`
	Proposer    string         `json:"proposer" cbor:"proposer"`
	CreatedAt   uint64         `json:"created_at" cbor:"created_at"`
	ExpiresAt   uint64         `json:"expires_at" cbor:"expires_at"`
	Status      ProposalStatus `json:"status" cbor:"status"`
	YesVotes    uint64         `json:"yes_votes" cbor:"yes_votes"`
	NoVotes     uint64         `json:"no_votes" cbor:"no_votes"`
	Executed    bool           `json:"executed" cbor:"executed"`
	Action      string         `json:"action" cbor:"action"`
	ActionData  []byte         `json:"action_data,omitempty" cbor:"action_data,omitempty"`
}

// YesPercent is yes*100/total rounded down, or 0 when no votes were cast.
// The product is taken in 128 bits so large tallies cannot wrap.
func (p Proposal) YesPercent() uint64 {
	yes, no := p.YesVotes, p.NoVotes
	if _, carry := bits.Add64(yes, no, 0); carry != 0 {
		yes, no = yes>>1, no>>1
	}
	total := yes + no
	if total == 0 {
		return 0
	}
	hi, lo := bits.Mul64(yes, 100)
	q, _ := bits.Div64(hi, lo, total)
	return q
}

// Passed reports whether yes*100 >= PassThresholdPercent*total, compared
// in 128 bits. A proposal without votes never passes.
func (p Proposal) Passed() bool {
	total, carry := bits.Add64(p.YesVotes, p.NoVotes, 0)
	if total == 0 && carry == 0 {
		return false
	}
	yesHi, yesLo := bits.Mul64(p.YesVotes, 100)
	// PassThresholdPercent*(carry*2^64 + total) as a 128-bit value.
	needHi, needLo := bits.Mul64(total, PassThresholdPercent)
	needHi += carry * PassThresholdPercent
	if yesHi != needHi {
		return yesHi > needHi
	}
	return yesLo >= needLo
}

// VoteRecord freezes the weight a voter had when the vote was cast.
type VoteRecord struct {
	GuildID    uint64 `json:"guild_id" cbor:"guild_id"`
	ProposalID uint64 `json:"proposal_id" cbor:"proposal_id"`
	Voter      string `json:"voter" cbor:"voter"`
	Support    bool   `json:"support" cbor:"support"`
	Weight     uint64 `json:"weight" cbor:"weight"`
	CastAt     uint64 `json:"cast_at" cbor:"cast_at"`
}

// Asset is a guild-scoped named resource.
type Asset struct {
	GuildID      uint64 `json:"guild_id" cbor:"guild_id"`
	ID           uint64 `json:"id" cbor:"id"`
	Name         string `json:"name" cbor:"name"`
	Type         string `json:"type" cbor:"type"`
	Owner        string `json:"owner" cbor:"owner"`
	Value        uint64 `json:"value" cbor:"value"`
	Metadata     string `json:"metadata" cbor:"metadata"`
	Transferable bool   `json:"transferable" cbor:"transferable"`
}

// AssetSpec carries the caller-supplied fields of a new asset.
type AssetSpec struct {
	Name         string
	Type         string
	Value        uint64
	Metadata     string
	Transferable bool
}

// Permission is the capability row for one exact role value on an asset.
type Permission struct {
	GuildID     uint64 `json:"guild_id" cbor:"guild_id"`
	AssetID     uint64 `json:"asset_id" cbor:"asset_id"`
	Role        Role   `json:"role" cbor:"role"`
	CanUse      bool   `json:"can_use" cbor:"can_use"`
	CanManage   bool   `json:"can_manage" cbor:"can_manage"`
	CanTransfer bool   `json:"can_transfer" cbor:"can_transfer"`
}

// GuildUpdate overwrites the non-nil fields of a guild record.
type GuildUpdate struct {
	Name            *string
	Description     *string
	GovernanceToken *string
}

func defaultPermissions(guildID, assetID uint64) []Permission {
	return []Permission{
		{GuildID: guildID, AssetID: assetID, Role: RoleOwner, CanUse: true, CanManage: true, CanTransfer: true},
		{GuildID: guildID, AssetID: assetID, Role: RoleAdmin, CanUse: true, CanManage: true},
		{GuildID: guildID, AssetID: assetID, Role: RoleMember, CanUse: true},
	}
}
