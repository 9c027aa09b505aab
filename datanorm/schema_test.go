package datanorm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchemaIsValid(t *testing.T) {
	require.NoError(t, DefaultSchema().Validate())
}

func TestLoadSchemaFile(t *testing.T) {
	s, err := LoadSchemaFile(filepath.Join("testdata", "schema.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ";", s.Delimiter)
	assert.Equal(t, 18, s.MaxPosition())
	assert.Equal(t, 8, s.MaxRequiredPosition())
}

func TestValidateRejectsDuplicatePosition(t *testing.T) {
	s := DefaultSchema()
	s.Columns[1].Position = s.Columns[0].Position
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doppelt belegt")
}

func TestValidateRejectsUnknownField(t *testing.T) {
	s := DefaultSchema()
	s.Columns[0].Field = "does_not_exist"
	assert.Error(t, s.Validate())
}

func TestValidateRejectsMarkerPosition(t *testing.T) {
	s := DefaultSchema()
	s.Columns[0].Position = 0
	assert.Error(t, s.Validate())
}

func TestValidateRequiresIdentityFields(t *testing.T) {
	s := DefaultSchema()
	filtered := s.Columns[:0]
	for _, col := range s.Columns {
		if col.Field != FieldSupplierExternalID {
			filtered = append(filtered, col)
		}
	}
	s.Columns = filtered
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supplier_external_id")
}

func TestValidateSample(t *testing.T) {
	s := DefaultSchema()
	require.NoError(t, s.ValidateSample("A;1;2;3;4;5;6;7;8;9;10;11;12;13;14;15;16;17;18"))
	assert.Error(t, s.ValidateSample("X;1;2"))
	assert.Error(t, s.ValidateSample("A;1;2;3"))
}
