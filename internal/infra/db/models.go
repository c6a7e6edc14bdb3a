package db

import "time"

type CredentialModel struct {
	ProofHash     string  `gorm:"type:char(64);primaryKey"`
	FileName      string  `gorm:"not null"`
	MimeType      string  `gorm:"not null"`
	SizeBytes     int64   `gorm:"not null"`
	Kind          string  `gorm:"not null"`
	StorageHandle *string `gorm:"uniqueIndex"`
	Status        string  `gorm:"not null"`
	ErrorCode     *string
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (CredentialModel) TableName() string {
	return "credentials"
}

type AnchorModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Seq          int64  `gorm:"->"`
	ProofHash    string `gorm:"type:char(64);index;not null"`
	Kind         string `gorm:"not null"`
	Status       string `gorm:"not null"`
	Reference    *string
	TxID         *string `gorm:"column:tx_id"`
	BlockHeight  *int64
	BlockTime    *time.Time
	ErrorCode    *string
	PollAttempts int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (AnchorModel) TableName() string {
	return "anchor_records"
}
