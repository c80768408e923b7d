package models

import "time"

// Read-only reference content maintained by administrators and served
// unauthenticated. The API never mutates these tables.

// Tip is a per-crop growing tip.
type Tip struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	CropName  string `gorm:"size:255;not null"`
	CropTips  string `gorm:"type:text;not null"`
}

// Disease describes a crop disease and its cure.
type Disease struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DiseaseName string `gorm:"size:255;not null"`
	Cure        string `gorm:"type:text;not null"`
	Commonness  string `gorm:"size:64"`
}

// News is an agricultural news item.
type News struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Title      string    `gorm:"size:255;not null"`
	Subtitle   string    `gorm:"size:255"`
	Content    string    `gorm:"type:text;not null"`
	AuthorName string    `gorm:"size:255"`
	Timestamp  time.Time `gorm:"not null"`
}
