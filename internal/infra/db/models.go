package db

import "time"

type IdentityModel struct {
	PublicKey       string    `gorm:"primaryKey;size:64"`
	Handle          *string   `gorm:"uniqueIndex"`
	TrustScore      float64   `gorm:"not null;default:0"`
	BreadcrumbCount int64     `gorm:"not null;default:0"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (IdentityModel) TableName() string { return "identities" }

type EpochModel struct {
	ID            int64     `gorm:"primaryKey"`
	PublicKey     string    `gorm:"size:64;index;uniqueIndex:idx_epoch_chain,priority:1;not null"`
	EpochIndex    int64     `gorm:"uniqueIndex:idx_epoch_chain,priority:2;not null"`
	MerkleRoot    string    `gorm:"not null"`
	StartTime     time.Time `gorm:"not null"`
	EndTime       time.Time `gorm:"not null"`
	BlockCount    int64     `gorm:"not null"`
	PrevEpochHash string    `gorm:"not null;default:''"`
	EpochHash     string    `gorm:"not null"`
	Signature     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (EpochModel) TableName() string { return "epochs" }
