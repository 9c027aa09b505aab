package services

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"datanorm-bridge/datanorm"
	"datanorm-bridge/models"
	"datanorm-bridge/repository"
)

// ValidationError bedeutet, dass einem einzelnen Datensatz ein
// Pflicht-Identitätsfeld fehlt. Der Datensatz wird übersprungen,
// der Lauf geht weiter.
type ValidationError struct {
	Line  int
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Datensatz in Zeile %d: Pflichtfeld %q fehlt", e.Line, e.Field)
}

// ResolvedRecord ist ein Quelldatensatz samt der aufgelösten
// Referenz-Entitäten.
type ResolvedRecord struct {
	Record       *datanorm.SourceRecord
	Supplier     *models.Supplier
	Manufacturer *models.Manufacturer
	Brand        *models.Brand // nil, wenn kein Markentext vorhanden
}

// EntityResolver löst Lieferanten, Hersteller und Marken aus den
// Quelldatensätzen auf und legt sie per Upsert an. Die Instanz gilt
// für genau einen Lauf; die internen Caches machen die Auflösung
// innerhalb des Laufs idempotent (kein doppeltes Hochzählen der
// Marken-Sequenz bei Duplikaten).
type EntityResolver struct {
	suppliers     repository.Suppliers
	manufacturers repository.Manufacturers
	brands        repository.Brands
	log           *zap.Logger

	supplierCache     map[string]*models.Supplier
	manufacturerCache map[string]*models.Manufacturer
	brandCache        map[string]*models.Brand

	Created int
	Updated int
}

// NewEntityResolver erstellt einen Resolver für einen Lauf.
func NewEntityResolver(store *repository.Store, log *zap.Logger) *EntityResolver {
	return &EntityResolver{
		suppliers:         store.Suppliers,
		manufacturers:     store.Manufacturers,
		brands:            store.Brands,
		log:               log,
		supplierCache:     map[string]*models.Supplier{},
		manufacturerCache: map[string]*models.Manufacturer{},
		brandCache:        map[string]*models.Brand{},
	}
}

// Resolve löst einen Datensatz auf. Fehlende Identitätsfelder ergeben
// einen ValidationError; alle anderen Anomalien werden geloggt und
// führen zum Überspringen des Datensatzes durch den Aufrufer.
func (r *EntityResolver) Resolve(rec *datanorm.SourceRecord) (*ResolvedRecord, error) {
	if rec.ArticleNumber == "" {
		return nil, &ValidationError{Line: rec.Line, Field: string(datanorm.FieldArticleNumber)}
	}
	if models.NormalizeExternalID(rec.SupplierExternalID) == "" {
		return nil, &ValidationError{Line: rec.Line, Field: string(datanorm.FieldSupplierExternalID)}
	}
	if models.NormalizeExternalID(rec.ManufacturerExternalID) == "" {
		return nil, &ValidationError{Line: rec.Line, Field: string(datanorm.FieldManufacturerExternalID)}
	}

	supplier, err := r.resolveSupplier(rec)
	if err != nil {
		return nil, err
	}
	manufacturer, err := r.resolveManufacturer(rec)
	if err != nil {
		return nil, err
	}
	brand, err := r.resolveBrand(manufacturer, rec.BrandText)
	if err != nil {
		return nil, err
	}

	return &ResolvedRecord{
		Record:       rec,
		Supplier:     supplier,
		Manufacturer: manufacturer,
		Brand:        brand,
	}, nil
}

func (r *EntityResolver) resolveSupplier(rec *datanorm.SourceRecord) (*models.Supplier, error) {
	key := models.NormalizeExternalID(rec.SupplierExternalID)
	if cached, ok := r.supplierCache[key]; ok {
		return cached, nil
	}

	candidate := &models.Supplier{
		ExternalID: rec.SupplierExternalID,
		Name:       rec.SupplierName,
	}
	if rec.SupplierGLN != "" {
		gln := rec.SupplierGLN
		candidate.GLN = &gln
	}
	supplier, created, err := r.suppliers.UpsertByExternalID(candidate)
	if err != nil {
		return nil, err
	}
	r.count(created)
	r.supplierCache[key] = supplier
	return supplier, nil
}

func (r *EntityResolver) resolveManufacturer(rec *datanorm.SourceRecord) (*models.Manufacturer, error) {
	key := models.NormalizeExternalID(rec.ManufacturerExternalID)
	if cached, ok := r.manufacturerCache[key]; ok {
		return cached, nil
	}

	candidate := &models.Manufacturer{
		ExternalID: rec.ManufacturerExternalID,
		Name:       rec.ManufacturerName,
	}
	if rec.ManufacturerGLN != "" {
		gln := rec.ManufacturerGLN
		candidate.GLN = &gln
	}
	manufacturer, created, err := r.manufacturers.UpsertByExternalID(candidate)
	if err != nil {
		return nil, err
	}
	r.count(created)
	r.manufacturerCache[key] = manufacturer
	return manufacturer, nil
}

func (r *EntityResolver) resolveBrand(m *models.Manufacturer, brandText string) (*models.Brand, error) {
	name := strings.TrimSpace(brandText)
	if name == "" {
		return nil, nil
	}

	key := fmt.Sprintf("%d|%s", m.ID, strings.ToLower(name))
	if cached, ok := r.brandCache[key]; ok {
		return cached, nil
	}

	brand, err := r.brands.ByName(m.ID, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		brand, err = r.brands.Create(m, name)
		if err != nil {
			return nil, err
		}
		r.Created++
		r.log.Debug("Neue Marke angelegt",
			zap.String("brand", name),
			zap.String("derived_key", brand.DerivedKey))
	} else if err != nil {
		return nil, err
	}

	r.brandCache[key] = brand
	return brand, nil
}

func (r *EntityResolver) count(created bool) {
	if created {
		r.Created++
	} else {
		r.Updated++
	}
}

// SupplierRow gibt die im Lauf aufgelöste Lieferanten-Zeile zurück
// (es ist genau eine pro Lauf zu erwarten).
func (r *EntityResolver) SupplierRow() *models.Supplier {
	for _, s := range r.supplierCache {
		return s
	}
	return nil
}

// Manufacturers gibt alle im Lauf berührten Hersteller zurück.
func (r *EntityResolver) Manufacturers() []*models.Manufacturer {
	out := make([]*models.Manufacturer, 0, len(r.manufacturerCache))
	for _, m := range r.manufacturerCache {
		out = append(out, m)
	}
	return out
}

// Brands gibt alle im Lauf berührten Marken zurück.
func (r *EntityResolver) Brands() []*models.Brand {
	out := make([]*models.Brand, 0, len(r.brandCache))
	for _, b := range r.brandCache {
		out = append(out, b)
	}
	return out
}
