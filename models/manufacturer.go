package models

import "time"

// Manufacturer repräsentiert einen Hersteller aus den Katalogdaten.
type Manufacturer struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExternalID string  `json:"external_id" gorm:"uniqueIndex;not null"`
	GLN        *string `json:"gln,omitempty" gorm:"column:gln;uniqueIndex"`
	Name       string  `json:"name"`

	// Monoton steigender Zähler für Marken-Schlüssel. Wird beim Anlegen
	// einer Marke erhöht und niemals zurückgesetzt, auch nicht wenn
	// Marken gelöscht werden.
	NextBrandSeq int `json:"next_brand_seq" gorm:"default:0"`
}

// TableName gibt explizit den Tabellennamen an.
func (Manufacturer) TableName() string {
	return "manufacturers"
}

// GLNOrExternalID liefert die Basis für abgeleitete Marken-Schlüssel.
// Fehlt die GLN, dient die ExternalID als Ersatz.
func (m *Manufacturer) GLNOrExternalID() string {
	if m.GLN != nil && *m.GLN != "" {
		return *m.GLN
	}
	return m.ExternalID
}
