package datanorm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.dat")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func collect(t *testing.T, p *Parser, path string) ([]*SourceRecord, ParseStats) {
	t.Helper()
	var records []*SourceRecord
	stats, err := p.ParseFile(path, func(rec *SourceRecord) error {
		records = append(records, rec)
		return nil
	})
	require.NoError(t, err)
	return records, stats
}

func TestParseSampleFile(t *testing.T) {
	p := NewParser(DefaultSchema(), zap.NewNop())
	records, stats := collect(t, p, filepath.Join("testdata", "sample.dat"))

	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 0, stats.Skipped)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "100001", first.ArticleNumber)
	assert.Equal(t, "4001234567890", first.EAN)
	assert.Equal(t, "Kupferrohr 15mm", first.Description)
	assert.Equal(t, "0815", first.SupplierExternalID)
	assert.Equal(t, "12", first.ManufacturerExternalID)
	assert.Equal(t, "ProLine", first.BrandText)
	require.NotNil(t, first.RecommendedPrice)
	assert.Equal(t, "12.5", first.RecommendedPrice.String())
	require.NotNil(t, first.Weight)
	assert.Equal(t, "0.45", first.Weight.String())
	assert.Equal(t, "http://bilder.example.de/100001.jpg", first.ImageURL)
	assert.Equal(t, 2, first.Line)
}

func TestParseSkipsShortRows(t *testing.T) {
	content := []byte("V;040;DATANORM\n" +
		"A;100001;;Artikel;;0815;Muster;;12;Werk;;;;;;;;;\n" +
		"A;100002;nur-drei-spalten\n" +
		"A;100003;;Artikel2;;0815;Muster;;12;Werk;;;;;;;;;\n")
	p := NewParser(DefaultSchema(), zap.NewNop())
	records, stats := collect(t, p, writeTempFile(t, content))

	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, "100001", records[0].ArticleNumber)
	assert.Equal(t, "100003", records[1].ArticleNumber)
}

func TestParseIgnoresOtherRecordKinds(t *testing.T) {
	content := []byte("V;040;DATANORM\n" +
		"B;rabattsatz;irrelevant\n" +
		"A;100001;;Artikel;;0815;Muster;;12;Werk;;;;;;;;;\n")
	p := NewParser(DefaultSchema(), zap.NewNop())
	_, stats := collect(t, p, writeTempFile(t, content))
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 0, stats.Skipped)
}

func TestParseFailsWithoutHeader(t *testing.T) {
	content := []byte("A;100001;;Artikel;;0815;Muster;;12;Werk;;;;;;;;;\n")
	p := NewParser(DefaultSchema(), zap.NewNop())
	_, err := p.ParseFile(writeTempFile(t, content), func(*SourceRecord) error { return nil })

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Line)
}

func TestParseFailsOnEmptyFile(t *testing.T) {
	p := NewParser(DefaultSchema(), zap.NewNop())
	_, err := p.ParseFile(writeTempFile(t, nil), func(*SourceRecord) error { return nil })

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
}

func TestParseFallsBackToCP850(t *testing.T) {
	// 0x94 ist "ö" in CP850 und ungültiges UTF-8.
	row := append([]byte("A;100001;;L"), 0x94)
	row = append(row, []byte("tkolben;;0815;Muster;;12;Werk;;;;;;;;;\n")...)
	content := append([]byte("V;040;DATANORM\n"), row...)

	p := NewParser(DefaultSchema(), zap.NewNop())
	records, stats := collect(t, p, writeTempFile(t, content))

	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, "Lötkolben", records[0].Description)
}

func TestParseBlankNumericStaysAbsent(t *testing.T) {
	content := []byte("V;040;DATANORM\n" +
		"A;100001;;Artikel;;0815;Muster;;12;Werk;;;8,20;;Marke;;;;\n")
	p := NewParser(DefaultSchema(), zap.NewNop())
	records, _ := collect(t, p, writeTempFile(t, content))

	rec := records[0]
	assert.Nil(t, rec.RecommendedPrice)
	require.NotNil(t, rec.PurchasePrice)
	assert.Equal(t, "8.2", rec.PurchasePrice.String())
	assert.Nil(t, rec.TaxRate)
	assert.Nil(t, rec.Weight)
}

func TestParseGermanThousandsSeparator(t *testing.T) {
	content := []byte("V;040;DATANORM\n" +
		"A;100001;;Artikel;;0815;Muster;;12;Werk;;1.234,56;;;;;;;\n")
	p := NewParser(DefaultSchema(), zap.NewNop())
	records, _ := collect(t, p, writeTempFile(t, content))

	require.NotNil(t, records[0].RecommendedPrice)
	assert.Equal(t, "1234.56", records[0].RecommendedPrice.String())
}

func TestParseNotRestartableWithoutReopen(t *testing.T) {
	p := NewParser(DefaultSchema(), zap.NewNop())
	path := filepath.Join("testdata", "sample.dat")

	_, stats1 := collect(t, p, path)
	_, stats2 := collect(t, p, path)
	// Jeder Aufruf öffnet die Datei neu und liefert denselben Bestand.
	assert.Equal(t, stats1.Records, stats2.Records)
}
