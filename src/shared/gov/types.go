package gov

import "time"

// Member is a principal recognised by the community. The membership oracle
// answers IsMember from this table.
type Member struct {
	Address  string    `gorm:"primaryKey;size:128" json:"address"`
	Discord  string    `gorm:"size:64" json:"discord,omitempty"`
	IsAdmin  bool      `gorm:"default:false" json:"isAdmin"`
	Active   bool      `gorm:"default:true;index" json:"active"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Setting represents a configuration setting stored in the database
type Setting struct {
	ID     uint16 `gorm:"primaryKey"`
	Name   string `gorm:"size:64;uniqueIndex;not null"`
	Value  string `gorm:"type:text;not null"`
	Active uint8  `gorm:"not null;default:1"`
}

// Sequence is a named monotonic counter used to derive deterministic ids.
type Sequence struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value uint64 `gorm:"not null"`
}

// AllModels lists every table owned by the service, in migration order.
func AllModels() []any {
	return []any{
		&Setting{}, &Member{}, &Sequence{},
		&Proposal{}, &Response{}, &Vote{},
		&ConsentContract{}, &Relationship{}, &CooldownConfirmation{},
		&LedgerEntry{}, &TreasuryBalance{}, &TreasuryDeposit{}, &TreasuryPayout{},
	}
}
