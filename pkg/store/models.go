package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ContactModel struct {
	ID        string         `gorm:"primaryKey"`
	Name      string         `gorm:"not null"`
	Email     string         `gorm:"not null;index"`
	Subject   string         `gorm:"not null"`
	Message   string         `gorm:"type:text;not null"`
	IsRead    bool           `gorm:"not null;default:false"`
	Meta      datatypes.JSON
	CreatedAt time.Time      `gorm:"not null;index"`
}

func (ContactModel) TableName() string { return "contacts" }

type CvFileModel struct {
	ID           string    `gorm:"primaryKey"`
	Filename     string    `gorm:"not null;uniqueIndex"`
	OriginalName string    `gorm:"not null"`
	FilePath     string    `gorm:"not null"`
	SizeBytes    int64     `gorm:"not null;default:0"`
	PageCount    int       `gorm:"not null;default:0"`
	IsActive     bool      `gorm:"not null;default:false;index"`
	UploadedAt   time.Time `gorm:"not null;index"`
}

func (CvFileModel) TableName() string { return "cv_files" }

type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }
