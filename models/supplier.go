package models

import (
	"strings"
	"time"
)

// Supplier repräsentiert einen Lieferanten, dessen DATANORM-Katalog
// konvertiert wird. Die ExternalID ist die einzige laufübergreifend
// stabile Identität; führende Nullen werden vor dem Speichern entfernt.
type Supplier struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExternalID string  `json:"external_id" gorm:"uniqueIndex;not null"`
	GLN        *string `json:"gln,omitempty" gorm:"column:gln;uniqueIndex"`
	Name       string  `json:"name"`
	ShortName  string  `json:"short_name"` // für Verzeichnis- und Dateinamen
	Active     bool    `json:"active" gorm:"default:true"`

	// Metadaten der zuletzt verarbeiteten Quelldatei (Änderungserkennung).
	SourceFileSize    int64      `json:"source_file_size"`
	SourceFileModTime *time.Time `json:"source_file_mod_time,omitempty"`
	LastArticleCount  int        `json:"last_article_count"`
	LastConvertedAt   *time.Time `json:"last_converted_at,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Supplier) TableName() string {
	return "suppliers"
}

// NormalizeExternalID entfernt führende Nullen, damit "0047110" und "47110"
// dieselbe Identität ergeben. Eine ID aus lauter Nullen bleibt "0".
func NormalizeExternalID(id string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(id), "0")
	if trimmed == "" && strings.TrimSpace(id) != "" {
		return "0"
	}
	return trimmed
}
