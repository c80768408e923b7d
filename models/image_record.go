package models

import "time"

// Placeholder values an ImageRecord carries between creation and the moment
// classification results are written back. Concurrent history reads may
// observe a record in this state.
const (
	PendingCropName = "Unknown"
	PendingSummary  = "Processing..."
)

// ImageRecord tracks one classification run. Detection runs are stateless and
// never produce a record. The record is created in the pending state before
// inference starts and finalized once with the resolved class and the full
// (untruncated) encyclopedia summary.
type ImageRecord struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	UserID         *uint `gorm:"index"` // nullable so history can outlive a deleted account
	User           *User `gorm:"foreignKey:UserID;references:ID"`
	ModelChosen    string `gorm:"size:128;not null"`
	CropName       string `gorm:"size:255;not null"`
	Summary        string `gorm:"type:text;not null"`
	ImagePath      string `gorm:"size:512"` // stored copy of the uploaded image, relative to the upload base
	ProcessedImage string `gorm:"size:512"` // optional annotated output, may stay empty
}
