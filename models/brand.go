package models

import "time"

// Brand repräsentiert eine Marke eines Herstellers. Der abgeleitete
// Schlüssel hat die Form {GLN}_{Sequenz}; einmal vergebene Schlüssel
// werden nie wiederverwendet oder neu berechnet.
type Brand struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ManufacturerID uint   `json:"manufacturer_id" gorm:"index;not null"`
	Name           string `json:"name" gorm:"not null"`
	Seq            int    `json:"seq" gorm:"not null"`
	DerivedKey     string `json:"derived_key" gorm:"uniqueIndex;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (Brand) TableName() string {
	return "brands"
}
