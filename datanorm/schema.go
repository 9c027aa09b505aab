package datanorm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field benennt ein semantisches Feld der Quelldatei.
type Field string

const (
	FieldArticleNumber             Field = "article_number"
	FieldEAN                       Field = "ean"
	FieldDescription               Field = "description"
	FieldSupplierGLN               Field = "supplier_gln"
	FieldSupplierExternalID        Field = "supplier_external_id"
	FieldSupplierName              Field = "supplier_name"
	FieldManufacturerGLN           Field = "manufacturer_gln"
	FieldManufacturerExternalID    Field = "manufacturer_external_id"
	FieldManufacturerName          Field = "manufacturer_name"
	FieldManufacturerArticleNumber Field = "manufacturer_article_number"
	FieldRecommendedPrice          Field = "recommended_price"
	FieldPurchasePrice             Field = "purchase_price"
	FieldTaxRate                   Field = "tax_rate"
	FieldBrandText                 Field = "brand_text"
	FieldWeight                    Field = "weight"
	FieldImageURL                  Field = "image_url"
	FieldLongText1                 Field = "long_text_1"
	FieldLongText2                 Field = "long_text_2"
)

var knownFields = map[Field]struct{}{
	FieldArticleNumber: {}, FieldEAN: {}, FieldDescription: {},
	FieldSupplierGLN: {}, FieldSupplierExternalID: {}, FieldSupplierName: {},
	FieldManufacturerGLN: {}, FieldManufacturerExternalID: {}, FieldManufacturerName: {},
	FieldManufacturerArticleNumber: {}, FieldRecommendedPrice: {}, FieldPurchasePrice: {},
	FieldTaxRate: {}, FieldBrandText: {}, FieldWeight: {}, FieldImageURL: {},
	FieldLongText1: {}, FieldLongText2: {},
}

// Column beschreibt eine Spalte: Position in der getrennten Zeile
// (0-basiert, Position 0 ist die Satzkennung) und ob sie Pflicht ist.
type Column struct {
	Field    Field `yaml:"field"`
	Position int   `yaml:"position"`
	Required bool  `yaml:"required"`
}

// Schema ist die deklarierte Spaltenbelegung der Quelldatei. Die
// Positionen stammen aus Konfiguration, nicht aus einer einzelnen
// Dokumentrevision; Validate und ValidateSample prüfen das Schema
// beim Start gegen eine bekannte gute Beispielzeile.
type Schema struct {
	Delimiter    string   `yaml:"delimiter"`
	HeaderMarker string   `yaml:"header_marker"`
	DataMarker   string   `yaml:"data_marker"`
	Columns      []Column `yaml:"columns"`
}

// DefaultSchema liefert das eingebaute Spaltenschema. Es entspricht der
// Beispieldatei in testdata und kann per YAML-Datei überschrieben werden.
func DefaultSchema() Schema {
	return Schema{
		Delimiter:    ";",
		HeaderMarker: "V",
		DataMarker:   "A",
		Columns: []Column{
			{Field: FieldArticleNumber, Position: 1, Required: true},
			{Field: FieldEAN, Position: 2},
			{Field: FieldDescription, Position: 3},
			{Field: FieldSupplierGLN, Position: 4},
			{Field: FieldSupplierExternalID, Position: 5, Required: true},
			{Field: FieldSupplierName, Position: 6},
			{Field: FieldManufacturerGLN, Position: 7},
			{Field: FieldManufacturerExternalID, Position: 8, Required: true},
			{Field: FieldManufacturerName, Position: 9},
			{Field: FieldManufacturerArticleNumber, Position: 10},
			{Field: FieldRecommendedPrice, Position: 11},
			{Field: FieldPurchasePrice, Position: 12},
			{Field: FieldTaxRate, Position: 13},
			{Field: FieldBrandText, Position: 14},
			{Field: FieldWeight, Position: 15},
			{Field: FieldImageURL, Position: 16},
			{Field: FieldLongText1, Position: 17},
			{Field: FieldLongText2, Position: 18},
		},
	}
}

// LoadSchemaFile lädt ein Spaltenschema aus einer YAML-Datei und validiert es.
func LoadSchemaFile(path string) (Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("Schema-Datei lesen: %w", err)
	}
	var s Schema
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Schema{}, fmt.Errorf("Schema-Datei parsen: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Validate prüft das Schema auf Konsistenz: bekannte Felder, eindeutige
// Positionen, Pflicht-Identitätsfelder vorhanden.
func (s Schema) Validate() error {
	if s.Delimiter == "" {
		return fmt.Errorf("Schema: Trennzeichen fehlt")
	}
	if s.HeaderMarker == "" || s.DataMarker == "" {
		return fmt.Errorf("Schema: Satzkennungen fehlen")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("Schema: keine Spalten definiert")
	}

	positions := map[int]Field{}
	fields := map[Field]struct{}{}
	for _, col := range s.Columns {
		if _, ok := knownFields[col.Field]; !ok {
			return fmt.Errorf("Schema: unbekanntes Feld %q", col.Field)
		}
		if col.Position < 1 {
			return fmt.Errorf("Schema: Feld %q hat ungültige Position %d (Position 0 ist die Satzkennung)", col.Field, col.Position)
		}
		if prev, dup := positions[col.Position]; dup {
			return fmt.Errorf("Schema: Position %d doppelt belegt (%q und %q)", col.Position, prev, col.Field)
		}
		if _, dup := fields[col.Field]; dup {
			return fmt.Errorf("Schema: Feld %q doppelt definiert", col.Field)
		}
		positions[col.Position] = col.Field
		fields[col.Field] = struct{}{}
	}

	for _, mandatory := range []Field{FieldArticleNumber, FieldSupplierExternalID, FieldManufacturerExternalID} {
		if _, ok := fields[mandatory]; !ok {
			return fmt.Errorf("Schema: Pflichtfeld %q fehlt", mandatory)
		}
	}
	return nil
}

// ValidateSample prüft das Schema gegen eine bekannte gute Datenzeile.
func (s Schema) ValidateSample(line string) error {
	parts := strings.Split(strings.TrimRight(line, "\r\n"), s.Delimiter)
	if len(parts) == 0 || parts[0] != s.DataMarker {
		return fmt.Errorf("Beispielzeile beginnt nicht mit Satzkennung %q", s.DataMarker)
	}
	if max := s.MaxPosition(); len(parts) <= max {
		return fmt.Errorf("Beispielzeile hat %d Spalten, Schema erwartet mindestens %d", len(parts), max+1)
	}
	return nil
}

// MaxPosition gibt die höchste belegte Spaltenposition zurück.
func (s Schema) MaxPosition() int {
	max := 0
	for _, col := range s.Columns {
		if col.Position > max {
			max = col.Position
		}
	}
	return max
}

// MaxRequiredPosition gibt die höchste Position eines Pflichtfelds zurück.
func (s Schema) MaxRequiredPosition() int {
	max := 0
	for _, col := range s.Columns {
		if col.Required && col.Position > max {
			max = col.Position
		}
	}
	return max
}
