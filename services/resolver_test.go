package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"datanorm-bridge/datanorm"
	"datanorm-bridge/models"
	"datanorm-bridge/repository"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Supplier{}, &models.Manufacturer{}, &models.Brand{}, &models.ConversionRun{},
	))
	return repository.NewStore(db)
}

func sampleRecord(line int) *datanorm.SourceRecord {
	return &datanorm.SourceRecord{
		Line:                   line,
		ArticleNumber:          "10000N",
		Description:            "Hammer 300g",
		SupplierExternalID:     "0815",
		SupplierName:           "Muster GmbH",
		SupplierGLN:            "4012345000001",
		ManufacturerExternalID: "12",
		ManufacturerName:       "Werkzeug AG",
		ManufacturerGLN:        "4098765000001",
		BrandText:              "ProLine",
	}
}

func TestResolveCreatesEntities(t *testing.T) {
	store := newTestStore(t)
	r := NewEntityResolver(store, zap.NewNop())

	rr, err := r.Resolve(sampleRecord(2))
	require.NoError(t, err)
	require.NotNil(t, rr.Supplier)
	require.NotNil(t, rr.Manufacturer)
	require.NotNil(t, rr.Brand)

	assert.Equal(t, "815", rr.Supplier.ExternalID) // führende Null entfernt
	assert.Equal(t, "4098765000001_1", rr.Brand.DerivedKey)
	assert.Equal(t, 3, r.Created)
	assert.Equal(t, 0, r.Updated)
}

func TestResolveCachesWithinRun(t *testing.T) {
	store := newTestStore(t)
	r := NewEntityResolver(store, zap.NewNop())

	// Zwei Datensätze derselben Marke: die Sequenz darf nur einmal
	// hochgezählt werden.
	rr1, err := r.Resolve(sampleRecord(2))
	require.NoError(t, err)
	rr2, err := r.Resolve(sampleRecord(3))
	require.NoError(t, err)

	assert.Equal(t, rr1.Brand.ID, rr2.Brand.ID)
	assert.Equal(t, 3, r.Created)

	m, err := store.Manufacturers.ByExternalID("12")
	require.NoError(t, err)
	assert.Equal(t, 1, m.NextBrandSeq)
}

func TestResolveIdempotentAcrossRuns(t *testing.T) {
	store := newTestStore(t)

	r1 := NewEntityResolver(store, zap.NewNop())
	_, err := r1.Resolve(sampleRecord(2))
	require.NoError(t, err)

	// Zweiter Lauf mit derselben Datei: nur Updates, keine neuen
	// Entitäten, dieselbe abgeleitete Marke.
	r2 := NewEntityResolver(store, zap.NewNop())
	rr, err := r2.Resolve(sampleRecord(2))
	require.NoError(t, err)

	assert.Equal(t, 0, r2.Created)
	assert.Equal(t, 2, r2.Updated) // Lieferant und Hersteller; die Marke wird nur wiedergefunden
	assert.Equal(t, "4098765000001_1", rr.Brand.DerivedKey)

	brands, err := store.Brands.ByManufacturer(rr.Manufacturer.ID)
	require.NoError(t, err)
	assert.Len(t, brands, 1)
}

func TestResolveMissingIdentityFields(t *testing.T) {
	store := newTestStore(t)
	r := NewEntityResolver(store, zap.NewNop())

	rec := sampleRecord(7)
	rec.SupplierExternalID = "   "
	_, err := r.Resolve(rec)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 7, verr.Line)

	rec2 := sampleRecord(8)
	rec2.ArticleNumber = ""
	_, err = r.Resolve(rec2)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "article_number", verr.Field)
}

func TestResolveWithoutBrandText(t *testing.T) {
	store := newTestStore(t)
	r := NewEntityResolver(store, zap.NewNop())

	rec := sampleRecord(2)
	rec.BrandText = ""
	rr, err := r.Resolve(rec)
	require.NoError(t, err)
	assert.Nil(t, rr.Brand)
	assert.Equal(t, 2, r.Created) // nur Lieferant und Hersteller
}
