package services

import (
	"encoding/csv"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"datanorm-bridge/datanorm"
)

// TargetColumns ist die feste, geordnete Spaltenliste der Zieldatei.
// Sie ist bewusst kleiner als das Quellschema; nicht abgebildete
// Zielfelder bleiben leer.
var TargetColumns = []string{
	"artikelnummer",
	"bezeichnung",
	"ean",
	"hersteller_artikelnummer",
	"hersteller",
	"marken_schluessel",
	"uvp",
	"ek_netto",
	"mwst_satz",
	"gewicht",
	"bilddatei",
	"langtext",
}

// TargetFormatter schreibt die aufgelösten Datensätze in das
// Zielschema. Die Abbildung pro Zeile ist eine reine Funktion aus
// Datensatz und Entitäten.
type TargetFormatter struct {
	Delimiter rune
	UseCRLF   bool
}

// NewTargetFormatter erstellt einen Formatter mit der konfigurierten
// Trennzeichen-/Quoting-Konvention.
func NewTargetFormatter(delimiter string, useCRLF bool) *TargetFormatter {
	d := ';'
	if delimiter != "" {
		d = []rune(delimiter)[0]
	}
	return &TargetFormatter{Delimiter: d, UseCRLF: useCRLF}
}

// MapRow bildet einen aufgelösten Datensatz auf eine Zielzeile ab.
// Ohne aufgelösten Lieferanten ist die Vorbedingung der Pipeline
// verletzt und es gibt einen FormatError.
func (t *TargetFormatter) MapRow(rr *ResolvedRecord) ([]string, error) {
	if rr.Supplier == nil {
		return nil, &datanorm.FormatError{Line: rr.Record.Line, Msg: "Datensatz ohne aufgelösten Lieferanten"}
	}

	rec := rr.Record
	row := make([]string, len(TargetColumns))
	row[0] = rec.ArticleNumber
	row[1] = rec.Description
	row[2] = rec.EAN
	row[3] = rec.ManufacturerArticleNumber
	if rr.Manufacturer != nil {
		row[4] = rr.Manufacturer.Name
	}
	if rr.Brand != nil {
		row[5] = rr.Brand.DerivedKey
	}
	row[6] = formatDecimal(rec.RecommendedPrice)
	row[7] = formatDecimal(rec.PurchasePrice)
	row[8] = formatDecimal(rec.TaxRate)
	row[9] = formatDecimal(rec.Weight)
	if rec.ImageURL != "" {
		row[10] = ImageFilename(rec.ImageURL)
	}
	row[11] = joinLongText(rec.LongText1, rec.LongText2)
	return row, nil
}

// WriteFile serialisiert Kopfzeile und alle Datensätze in die Zieldatei
// und gibt die Anzahl der geschriebenen Datenzeilen zurück.
func (t *TargetFormatter) WriteFile(path string, records []*ResolvedRecord) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = t.Delimiter
	w.UseCRLF = t.UseCRLF

	if err := w.Write(TargetColumns); err != nil {
		return 0, err
	}

	written := 0
	for _, rr := range records {
		row, err := t.MapRow(rr)
		if err != nil {
			return written, err
		}
		if err := w.Write(row); err != nil {
			return written, err
		}
		written++
	}

	w.Flush()
	return written, w.Error()
}

// formatDecimal schreibt Dezimalwerte in deutscher Notation; nil bleibt leer.
func formatDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return strings.ReplaceAll(d.String(), ".", ",")
}

func joinLongText(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(p))
		}
	}
	return strings.Join(nonEmpty, " ")
}
