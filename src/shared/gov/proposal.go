package gov

import (
	"fmt"
	"strings"
	"time"
)

// ProposalType selects which payload fields a proposal carries.
type ProposalType string

const (
	ProposalFunding    ProposalType = "Funding"
	ProposalRuleChange ProposalType = "RuleChange"
	ProposalDebug      ProposalType = "Debug"
	ProposalEmergency  ProposalType = "Emergency"
)

// ParseProposalType accepts the canonical names case-insensitively.
func ParseProposalType(s string) (ProposalType, error) {
	for _, t := range []ProposalType{ProposalFunding, ProposalRuleChange, ProposalDebug, ProposalEmergency} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown proposal type %q", ErrInvalidPayload, s)
}

// ProposalStatus is the stored lifecycle state of a proposal.
type ProposalStatus string

const (
	StatusListening        ProposalStatus = "Listening"
	StatusConsensusBlocked ProposalStatus = "ConsensusBlocked"
	StatusVoting           ProposalStatus = "Voting"
	StatusExecuted         ProposalStatus = "Executed"
	StatusRejected         ProposalStatus = "Rejected"
)

// ParseProposalStatus accepts the canonical names case-insensitively.
func ParseProposalStatus(s string) (ProposalStatus, error) {
	for _, st := range []ProposalStatus{StatusListening, StatusConsensusBlocked, StatusVoting, StatusExecuted, StatusRejected} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown proposal status %q", ErrInvalidPayload, s)
}

// Terminal reports whether no further transition is possible.
func (s ProposalStatus) Terminal() bool {
	return s == StatusConsensusBlocked || s == StatusExecuted || s == StatusRejected
}

// Active mirrors the listing used by the commons board: everything that has
// not been executed or rejected.
func (s ProposalStatus) Active() bool {
	return s == StatusListening || s == StatusConsensusBlocked || s == StatusVoting
}

// CanTransitionTo encodes Listening -> {ConsensusBlocked|Voting} -> {Executed|Rejected}.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	switch s {
	case StatusListening:
		return next == StatusConsensusBlocked || next == StatusVoting
	case StatusVoting:
		return next == StatusExecuted || next == StatusRejected
	default:
		return false
	}
}

// Rank orders statuses along the lifecycle; later phases rank higher.
func (s ProposalStatus) Rank() int {
	switch s {
	case StatusListening:
		return 0
	case StatusConsensusBlocked, StatusVoting:
		return 1
	case StatusExecuted, StatusRejected:
		return 2
	default:
		return -1
	}
}

// Proposal is a governance proposal. Rows are never deleted.
type Proposal struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Proposer         string         `gorm:"size:128;index;not null" json:"proposer"`
	Type             ProposalType   `gorm:"size:16;not null" json:"type"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Amount           uint64         `gorm:"default:0" json:"amount,omitempty"`
	Recipient        string         `gorm:"size:128" json:"recipient,omitempty"`
	DebugTarget      string         `gorm:"type:text" json:"debugTarget,omitempty"`
	VotingDays       uint32         `gorm:"not null" json:"votingDays"`
	ListeningEnd     time.Time      `gorm:"not null" json:"listeningEnd"`
	VotingEnd        *time.Time     `json:"votingEnd,omitempty"`
	Status           ProposalStatus `gorm:"size:24;index;not null" json:"status"`
	ForVotes         uint32         `gorm:"not null;default:0" json:"forVotes"`
	AgainstVotes     uint32         `gorm:"not null;default:0" json:"againstVotes"`
	TotalVotes       uint32         `gorm:"not null;default:0" json:"totalVotes"`
	CoreConcernCount uint32         `gorm:"not null;default:0" json:"coreConcernCount"`
	ResolvedAt       *time.Time     `json:"resolvedAt,omitempty"`
	Version          uint64         `gorm:"not null;default:0" json:"version"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Response is a listening-phase reply. One per (proposal, member).
type Response struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProposalID        uint64    `gorm:"uniqueIndex:idx_response_member;not null" json:"proposalId"`
	Member            string    `gorm:"uniqueIndex:idx_response_member;size:128;not null" json:"member"`
	Comment           string    `gorm:"type:text" json:"comment"`
	RaisesCoreConcern bool      `gorm:"default:false" json:"raisesCoreConcern"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Vote is a voting-phase ballot. One per (proposal, member).
type Vote struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProposalID uint64    `gorm:"uniqueIndex:idx_vote_member;not null" json:"proposalId"`
	Member     string    `gorm:"uniqueIndex:idx_vote_member;size:128;not null" json:"member"`
	Support    bool      `gorm:"not null" json:"support"`
	CreatedAt  time.Time `json:"createdAt"`
}
