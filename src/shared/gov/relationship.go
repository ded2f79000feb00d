package gov

import (
	"fmt"
	"strings"
	"time"
)

// RelationshipType classifies a bilateral relationship.
type RelationshipType string

const (
	RelationshipEmotional     RelationshipType = "Emotional"
	RelationshipCollaborative RelationshipType = "Collaborative"
	RelationshipMentorship    RelationshipType = "Mentorship"
	RelationshipSolidarity    RelationshipType = "Solidarity"
	RelationshipRomantic      RelationshipType = "Romantic"
)

// ParseRelationshipType accepts the canonical names case-insensitively.
func ParseRelationshipType(s string) (RelationshipType, error) {
	for _, t := range []RelationshipType{
		RelationshipEmotional, RelationshipCollaborative, RelationshipMentorship,
		RelationshipSolidarity, RelationshipRomantic,
	} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown relationship type %q", ErrInvalidPayload, s)
}

// RelationshipStatus is the stored lifecycle state of a relationship.
type RelationshipStatus string

const (
	RelationshipActive     RelationshipStatus = "Active"
	RelationshipCooldown   RelationshipStatus = "Cooldown"
	RelationshipTerminated RelationshipStatus = "Terminated"
)

// Open reports whether the relationship still counts against the
// one-per-pair rule.
func (s RelationshipStatus) Open() bool {
	return s == RelationshipActive || s == RelationshipCooldown
}

// ConsentContract is the offer half of a relationship. It is frozen once the
// counterparty consents.
type ConsentContract struct {
	ID                  string           `gorm:"primaryKey;size:66" json:"id"`
	Initiator           string           `gorm:"size:128;index;not null" json:"initiator"`
	Counterparty        string           `gorm:"size:128;index;not null" json:"counterparty"`
	InitiatedConsent    bool             `gorm:"not null" json:"initiatedConsent"`
	CounterpartyConsent bool             `gorm:"not null;default:false" json:"counterpartyConsent"`
	ProposedAt          time.Time        `gorm:"not null" json:"proposedAt"`
	ConsentedAt         *time.Time       `json:"consentedAt,omitempty"`
	RelationshipType    RelationshipType `gorm:"size:16;not null" json:"relationshipType"`
	Terms               string           `gorm:"type:text" json:"terms"`
	RelationshipID      string           `gorm:"size:66" json:"relationshipId,omitempty"`
	Nonce               uint64           `gorm:"not null" json:"nonce"`
	Version             uint64           `gorm:"not null;default:0" json:"version"`
}

// Relationship is a consented bilateral relationship. Terminated rows are
// never mutated again.
type Relationship struct {
	ID        string `gorm:"primaryKey;size:66" json:"id"`
	ConsentID string `gorm:"size:66;uniqueIndex;not null" json:"consentId"`
	PartyA    string `gorm:"size:128;index;not null" json:"partyA"`
	PartyB    string `gorm:"size:128;index;not null" json:"partyB"`
	PairKey   string `gorm:"size:260;index;not null" json:"-"`
	// OpenPair equals PairKey while the relationship is Active or Cooldown
	// and is NULL once terminated; its unique index enforces one open
	// relationship per pair.
	OpenPair          *string            `gorm:"size:260;uniqueIndex" json:"-"`
	RelationshipType  RelationshipType   `gorm:"size:16;not null" json:"relationshipType"`
	Boundaries        string             `gorm:"type:text" json:"boundaries"`
	CooldownEnd       *time.Time         `json:"cooldownEnd,omitempty"`
	CooldownEpisode   uint32             `gorm:"not null;default:0" json:"cooldownEpisode"`
	Status            RelationshipStatus `gorm:"size:16;index;not null" json:"status"`
	CreatedAt         time.Time          `json:"createdAt"`
	TerminatedAt      *time.Time         `json:"terminatedAt,omitempty"`
	TerminationReason string             `gorm:"type:text" json:"terminationReason,omitempty"`
	Version           uint64             `gorm:"not null;default:0" json:"version"`
}

// HasParty reports whether addr is one of the two parties.
func (r *Relationship) HasParty(addr string) bool {
	return addr != "" && (r.PartyA == addr || r.PartyB == addr)
}

// Other returns the opposite party, or "" when addr is not a party.
func (r *Relationship) Other(addr string) string {
	switch addr {
	case r.PartyA:
		return r.PartyB
	case r.PartyB:
		return r.PartyA
	}
	return ""
}

// CooldownConfirmation records that a party agreed to end one cooldown
// episode.
type CooldownConfirmation struct {
	RelationshipID string    `gorm:"primaryKey;size:66" json:"relationshipId"`
	Episode        uint32    `gorm:"primaryKey" json:"episode"`
	Member         string    `gorm:"primaryKey;size:128" json:"member"`
	ConfirmedAt    time.Time `json:"confirmedAt"`
}

// PairKey returns an order-independent key for two principals.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
