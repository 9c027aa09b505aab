package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"datanorm-bridge/models"
)

// Store bündelt alle GORM-basierten Repositories.
type Store struct {
	Suppliers     Suppliers
	Manufacturers Manufacturers
	Brands        Brands
	Runs          Runs
}

// NewStore erstellt die GORM-Implementierung aller Repositories.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		Suppliers:     &gormSuppliers{db: db},
		Manufacturers: &gormManufacturers{db: db},
		Brands:        &gormBrands{db: db},
		Runs:          &gormRuns{db: db},
	}
}

type gormSuppliers struct {
	db *gorm.DB
}

func (r *gormSuppliers) ByID(id uint) (*models.Supplier, error) {
	var s models.Supplier
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormSuppliers) ByExternalID(externalID string) (*models.Supplier, error) {
	var s models.Supplier
	err := r.db.Where("external_id = ?", models.NormalizeExternalID(externalID)).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormSuppliers) Active() ([]models.Supplier, error) {
	var out []models.Supplier
	err := r.db.Where("active = ?", true).Order("external_id").Find(&out).Error
	return out, err
}

func (r *gormSuppliers) All() ([]models.Supplier, error) {
	var out []models.Supplier
	err := r.db.Order("external_id").Find(&out).Error
	return out, err
}

func (r *gormSuppliers) Create(s *models.Supplier) error {
	s.ExternalID = models.NormalizeExternalID(s.ExternalID)
	return r.db.Create(s).Error
}

func (r *gormSuppliers) Save(s *models.Supplier) error {
	return r.db.Save(s).Error
}

func (r *gormSuppliers) UpsertByExternalID(s *models.Supplier) (*models.Supplier, bool, error) {
	s.ExternalID = models.NormalizeExternalID(s.ExternalID)

	var existing models.Supplier
	err := r.db.Where("external_id = ?", s.ExternalID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.db.Create(s).Error; err != nil {
			return nil, false, err
		}
		return s, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	if s.Name != "" {
		existing.Name = s.Name
	}
	if s.ShortName != "" {
		existing.ShortName = s.ShortName
	}
	// GLN nur nachtragen, nie überschreiben oder löschen.
	if existing.GLN == nil && s.GLN != nil && *s.GLN != "" {
		existing.GLN = s.GLN
	}
	if err := r.db.Save(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

type gormManufacturers struct {
	db *gorm.DB
}

func (r *gormManufacturers) ByExternalID(externalID string) (*models.Manufacturer, error) {
	var m models.Manufacturer
	err := r.db.Where("external_id = ?", models.NormalizeExternalID(externalID)).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormManufacturers) UpsertByExternalID(m *models.Manufacturer) (*models.Manufacturer, bool, error) {
	m.ExternalID = models.NormalizeExternalID(m.ExternalID)

	var existing models.Manufacturer
	err := r.db.Where("external_id = ?", m.ExternalID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.db.Create(m).Error; err != nil {
			return nil, false, err
		}
		return m, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	if m.Name != "" {
		existing.Name = m.Name
	}
	if existing.GLN == nil && m.GLN != nil && *m.GLN != "" {
		existing.GLN = m.GLN
	}
	if err := r.db.Save(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

type gormBrands struct {
	db *gorm.DB
}

func (r *gormBrands) ByName(manufacturerID uint, name string) (*models.Brand, error) {
	var b models.Brand
	err := r.db.
		Where("manufacturer_id = ? AND LOWER(name) = ?", manufacturerID, strings.ToLower(name)).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *gormBrands) Create(m *models.Manufacturer, name string) (*models.Brand, error) {
	var brand *models.Brand
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Sequenz atomar reservieren; gelöschte Marken geben ihre
		// Nummer nicht wieder frei.
		if err := tx.Model(&models.Manufacturer{}).
			Where("id = ?", m.ID).
			UpdateColumn("next_brand_seq", gorm.Expr("next_brand_seq + ?", 1)).Error; err != nil {
			return err
		}
		var fresh models.Manufacturer
		if err := tx.First(&fresh, m.ID).Error; err != nil {
			return err
		}
		m.NextBrandSeq = fresh.NextBrandSeq

		b := models.Brand{
			ManufacturerID: m.ID,
			Name:           name,
			Seq:            fresh.NextBrandSeq,
			DerivedKey:     fmt.Sprintf("%s_%d", fresh.GLNOrExternalID(), fresh.NextBrandSeq),
		}
		if err := tx.Create(&b).Error; err != nil {
			return err
		}
		brand = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return brand, nil
}

func (r *gormBrands) ByManufacturer(manufacturerID uint) ([]models.Brand, error) {
	var out []models.Brand
	err := r.db.Where("manufacturer_id = ?", manufacturerID).Order("seq").Find(&out).Error
	return out, err
}

type gormRuns struct {
	db *gorm.DB
}

func (r *gormRuns) Create(run *models.ConversionRun) error {
	return r.db.Create(run).Error
}

func (r *gormRuns) Save(run *models.ConversionRun) error {
	return r.db.Save(run).Error
}

func (r *gormRuns) ByID(id uint) (*models.ConversionRun, error) {
	var run models.ConversionRun
	if err := r.db.First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *gormRuns) BySupplier(supplierID uint, limit int) ([]models.ConversionRun, error) {
	q := r.db.Where("supplier_id = ?", supplierID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.ConversionRun
	err := q.Find(&out).Error
	return out, err
}
