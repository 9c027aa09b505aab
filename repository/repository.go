package repository

import (
	"datanorm-bridge/models"
)

// Suppliers kapselt die Persistenz der Lieferanten. Die Pipeline kennt nur
// dieses Interface, nicht die konkrete Datenbank.
type Suppliers interface {
	ByID(id uint) (*models.Supplier, error)
	ByExternalID(externalID string) (*models.Supplier, error)
	Active() ([]models.Supplier, error)
	All() ([]models.Supplier, error)
	Create(s *models.Supplier) error
	Save(s *models.Supplier) error
	// UpsertByExternalID legt den Lieferanten an oder aktualisiert die
	// veränderlichen Felder (Name, GLN sofern jetzt vorhanden). Die
	// Identität selbst wird nie verändert.
	UpsertByExternalID(s *models.Supplier) (*models.Supplier, bool, error)
}

// Manufacturers kapselt die Persistenz der Hersteller.
type Manufacturers interface {
	ByExternalID(externalID string) (*models.Manufacturer, error)
	UpsertByExternalID(m *models.Manufacturer) (*models.Manufacturer, bool, error)
}

// Brands kapselt die Persistenz der Marken inklusive der
// Sequenzvergabe pro Hersteller.
type Brands interface {
	// ByName sucht eine Marke des Herstellers per Anzeigename,
	// Groß-/Kleinschreibung wird ignoriert.
	ByName(manufacturerID uint, name string) (*models.Brand, error)
	// Create reserviert die nächste Sequenznummer des Herstellers und
	// legt die Marke mit abgeleitetem Schlüssel {GLN}_{Seq} an.
	Create(m *models.Manufacturer, name string) (*models.Brand, error)
	ByManufacturer(manufacturerID uint) ([]models.Brand, error)
}

// Runs kapselt die Persistenz der Konvertierungsläufe.
type Runs interface {
	Create(r *models.ConversionRun) error
	Save(r *models.ConversionRun) error
	ByID(id uint) (*models.ConversionRun, error)
	BySupplier(supplierID uint, limit int) ([]models.ConversionRun, error)
}
