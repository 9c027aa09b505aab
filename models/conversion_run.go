package models

import (
	"time"

	"gorm.io/datatypes"
)

// Status-Werte für einzelne Pipeline-Stufen.
const (
	StagePending = "pending"
	StageRunning = "running"
	StageOK      = "ok"
	StageFailed  = "failed"
	StageSkipped = "skipped"
)

// Terminale Ergebnisse eines Konvertierungslaufs.
const (
	OutcomePending  = "pending"
	OutcomeSuccess  = "success"
	OutcomePartial  = "partial"
	OutcomeAborted  = "aborted"
	OutcomeNoData   = "no_data"
	OutcomeNoChange = "no_change"
)

// ConversionRun protokolliert einen Pipeline-Durchlauf für genau einen
// Lieferanten: Status pro Stufe, Zähler und das terminale Ergebnis.
// Die Zeile wird beim Start angelegt und genau einmal abgeschlossen.
type ConversionRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SupplierID uint   `json:"supplier_id" gorm:"index;not null"`
	Outcome    string `json:"outcome" gorm:"index;default:'pending'"`

	FetchStatus   string `json:"fetch_status" gorm:"default:'pending'"`
	ParseStatus   string `json:"parse_status" gorm:"default:'pending'"`
	ResolveStatus string `json:"resolve_status" gorm:"default:'pending'"`
	FormatStatus  string `json:"format_status" gorm:"default:'pending'"`
	ImagesStatus  string `json:"images_status" gorm:"default:'pending'"`
	PublishStatus string `json:"publish_status" gorm:"default:'pending'"`
	NotifyStatus  string `json:"notify_status" gorm:"default:'pending'"`

	RecordsParsed   int `json:"records_parsed"`
	RecordsSkipped  int `json:"records_skipped"`
	EntitiesCreated int `json:"entities_created"`
	EntitiesUpdated int `json:"entities_updated"`
	ImagesOK        int `json:"images_ok"`
	ImagesFailed    int `json:"images_failed"`
	ImagesSkipped   int `json:"images_skipped"`

	StagingDir string `json:"staging_dir,omitempty"`
	RemoteDir  string `json:"remote_dir,omitempty"`
	TargetFile string `json:"target_file,omitempty"`

	// Antwort des Import-Triggers ({"status": ..., "body": ...}).
	NotifyResponse datatypes.JSON `json:"notify_response,omitempty" gorm:"type:jsonb"`

	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (ConversionRun) TableName() string {
	return "conversion_runs"
}
