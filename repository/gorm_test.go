package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"datanorm-bridge/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Supplier{}, &models.Manufacturer{}, &models.Brand{}, &models.ConversionRun{},
	))
	return db
}

func strPtr(s string) *string { return &s }

func TestSupplierUpsertNormalizesExternalID(t *testing.T) {
	store := NewStore(openTestDB(t))

	s1, created, err := store.Suppliers.UpsertByExternalID(&models.Supplier{
		ExternalID: "0047110",
		Name:       "Muster GmbH",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "47110", s1.ExternalID)

	// Gleiche Identität ohne führende Nullen: Update, kein Insert.
	s2, created, err := store.Suppliers.UpsertByExternalID(&models.Supplier{
		ExternalID: "47110",
		Name:       "Muster GmbH & Co. KG",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, s1.ID, s2.ID)
	assert.Equal(t, "Muster GmbH & Co. KG", s2.Name)

	found, err := store.Suppliers.ByExternalID("000047110")
	require.NoError(t, err)
	assert.Equal(t, s1.ID, found.ID)
}

func TestSupplierUpsertBackfillsGLN(t *testing.T) {
	store := NewStore(openTestDB(t))

	s, _, err := store.Suppliers.UpsertByExternalID(&models.Supplier{ExternalID: "7", Name: "A"})
	require.NoError(t, err)
	assert.Nil(t, s.GLN)

	s, created, err := store.Suppliers.UpsertByExternalID(&models.Supplier{
		ExternalID: "7", Name: "A", GLN: strPtr("4012345000009"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, s.GLN)
	assert.Equal(t, "4012345000009", *s.GLN)

	// Vorhandene GLN wird nicht überschrieben.
	s, _, err = store.Suppliers.UpsertByExternalID(&models.Supplier{
		ExternalID: "7", GLN: strPtr("9999999999999"),
	})
	require.NoError(t, err)
	assert.Equal(t, "4012345000009", *s.GLN)
}

func TestBrandSequenceIsMonotonic(t *testing.T) {
	store := NewStore(openTestDB(t))

	m, _, err := store.Manufacturers.UpsertByExternalID(&models.Manufacturer{
		ExternalID: "12", Name: "Hersteller", GLN: strPtr("4098765000001"),
	})
	require.NoError(t, err)

	b1, err := store.Brands.Create(m, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, "4098765000001_1", b1.DerivedKey)

	b2, err := store.Brands.Create(m, "Beta")
	require.NoError(t, err)
	assert.Equal(t, "4098765000001_2", b2.DerivedKey)

	// Löschen gibt die Sequenz nicht wieder frei.
	require.NoError(t, openDBFrom(t, store).Delete(&models.Brand{}, b2.ID).Error)
	b3, err := store.Brands.Create(m, "Gamma")
	require.NoError(t, err)
	assert.Equal(t, "4098765000001_3", b3.DerivedKey)
}

func TestBrandLookupIsCaseInsensitive(t *testing.T) {
	store := NewStore(openTestDB(t))

	m, _, err := store.Manufacturers.UpsertByExternalID(&models.Manufacturer{ExternalID: "3", Name: "H"})
	require.NoError(t, err)

	created, err := store.Brands.Create(m, "ProLine")
	require.NoError(t, err)

	found, err := store.Brands.ByName(m.ID, "PROLINE")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestBrandKeyFallsBackToExternalID(t *testing.T) {
	store := NewStore(openTestDB(t))

	m, _, err := store.Manufacturers.UpsertByExternalID(&models.Manufacturer{ExternalID: "55", Name: "Ohne GLN"})
	require.NoError(t, err)

	b, err := store.Brands.Create(m, "Solo")
	require.NoError(t, err)
	assert.Equal(t, "55_1", b.DerivedKey)
}

// openDBFrom holt das rohe gorm.DB aus dem Store für Test-Hilfsoperationen.
func openDBFrom(t *testing.T, store *Store) *gorm.DB {
	t.Helper()
	return store.Brands.(*gormBrands).db
}
