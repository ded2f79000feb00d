package gov

import "time"

// LedgerEntry is one hash-chained record of a committed transition.
type LedgerEntry struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	Kind       string    `gorm:"size:48;index;not null" json:"kind"`
	EntityType string    `gorm:"size:24;index:idx_ledger_entity;not null" json:"entityType"`
	EntityID   string    `gorm:"size:66;index:idx_ledger_entity;not null" json:"entityId"`
	Actor      string    `gorm:"size:128" json:"actor"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	PrevHash   string    `gorm:"size:64;not null" json:"prevHash"`
	Hash       string    `gorm:"size:64;uniqueIndex;not null" json:"hash"`
	CreatedAt  time.Time `gorm:"not null" json:"createdAt"`
}

// TreasuryBalance is the single-row balance of the local treasury pool.
type TreasuryBalance struct {
	ID      uint8  `gorm:"primaryKey"`
	Balance uint64 `gorm:"not null;default:0"`
	Version uint64 `gorm:"not null;default:0"`
}

// TreasuryDeposit credits the treasury pool.
type TreasuryDeposit struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Depositor string    `gorm:"size:128;not null" json:"depositor"`
	Amount    uint64    `gorm:"not null" json:"amount"`
	Note      string    `gorm:"size:255" json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TreasuryPayout records funds released by an executed Funding proposal.
type TreasuryPayout struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProposalID uint64    `gorm:"uniqueIndex;not null" json:"proposalId"`
	Recipient  string    `gorm:"size:128;not null" json:"recipient"`
	Amount     uint64    `gorm:"not null" json:"amount"`
	Reference  string    `gorm:"size:128;not null;default:''" json:"reference,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
