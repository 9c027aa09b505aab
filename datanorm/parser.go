package datanorm

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// FormatError bedeutet, dass die Quelldatei als Ganzes unbrauchbar ist
// (fehlende oder defekte Kopfzeile). Der Lauf bricht damit ab.
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("Formatfehler in Zeile %d: %s", e.Line, e.Msg)
}

// ParseStats fasst einen Parserdurchlauf zusammen.
type ParseStats struct {
	Records int // ausgegebene Datensätze
	Skipped int // übersprungene Datenzeilen (zu wenig Spalten)
}

// Parser liest eine DATANORM-Datei satzweise ein. Ein Durchlauf ist
// genau ein Dateidurchgang; zum erneuten Parsen muss die Datei neu
// geöffnet werden.
type Parser struct {
	schema Schema
	log    *zap.Logger
}

// NewParser erstellt einen Parser für das gegebene Schema.
func NewParser(schema Schema, log *zap.Logger) *Parser {
	return &Parser{schema: schema, log: log}
}

// ParseFile liest die Datei und ruft fn für jeden Datensatz auf.
// Die erste nicht-leere Zeile muss die Kopfzeile sein, sonst schlägt
// der gesamte Durchlauf mit FormatError fehl. Datenzeilen mit zu
// wenigen Spalten werden mit Zeilennummer geloggt und übersprungen.
func (p *Parser) ParseFile(path string, fn func(*SourceRecord) error) (ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ParseStats{}, err
	}
	defer f.Close()

	var stats ParseStats
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	maxRequired := p.schema.MaxRequiredPosition()
	headerSeen := false
	fallback := false // ab der ersten ungültigen UTF-8-Zeile CP850 für den Rest
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line, usedFallback, err := p.decodeLine(scanner.Bytes(), fallback)
		if err != nil {
			return stats, &FormatError{Line: lineNo, Msg: fmt.Sprintf("Zeile nicht dekodierbar: %v", err)}
		}
		fallback = fallback || usedFallback

		if strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.Split(line, p.schema.Delimiter)
		if !headerSeen {
			if parts[0] != p.schema.HeaderMarker || len(parts) < 2 {
				return stats, &FormatError{Line: lineNo, Msg: fmt.Sprintf("Kopfzeile fehlt oder ist defekt (Satzkennung %q erwartet)", p.schema.HeaderMarker)}
			}
			headerSeen = true
			continue
		}

		if parts[0] != p.schema.DataMarker {
			// Andere Satzarten (Rabatte, Texte) werden nicht verarbeitet.
			continue
		}

		if len(parts) <= maxRequired {
			p.log.Warn("Datenzeile übersprungen: zu wenig Spalten",
				zap.Int("line", lineNo),
				zap.Int("columns", len(parts)),
				zap.Int("required", maxRequired+1))
			stats.Skipped++
			continue
		}

		rec := p.buildRecord(parts, lineNo)
		stats.Records++
		if err := fn(rec); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, err
	}

	if !headerSeen {
		return stats, &FormatError{Line: lineNo, Msg: "Datei enthält keine Kopfzeile"}
	}
	return stats, nil
}

// decodeLine versucht zuerst UTF-8; ab dem ersten Fehlschlag wird für
// den Rest der Datei CP850 angenommen (DOS-Erbe des Formats).
func (p *Parser) decodeLine(raw []byte, forceFallback bool) (string, bool, error) {
	if !forceFallback && utf8.Valid(raw) {
		return string(raw), false, nil
	}
	decoded, err := charmap.CodePage850.NewDecoder().Bytes(raw)
	if err != nil {
		return "", true, err
	}
	return string(decoded), true, nil
}

func (p *Parser) buildRecord(parts []string, lineNo int) *SourceRecord {
	rec := &SourceRecord{Line: lineNo}
	for _, col := range p.schema.Columns {
		var value string
		if col.Position < len(parts) {
			value = strings.TrimSpace(parts[col.Position])
		}
		p.assign(rec, col.Field, value, lineNo)
	}
	return rec
}

func (p *Parser) assign(rec *SourceRecord, field Field, value string, lineNo int) {
	switch field {
	case FieldArticleNumber:
		rec.ArticleNumber = value
	case FieldEAN:
		rec.EAN = value
	case FieldDescription:
		rec.Description = value
	case FieldSupplierGLN:
		rec.SupplierGLN = value
	case FieldSupplierExternalID:
		rec.SupplierExternalID = value
	case FieldSupplierName:
		rec.SupplierName = value
	case FieldManufacturerGLN:
		rec.ManufacturerGLN = value
	case FieldManufacturerExternalID:
		rec.ManufacturerExternalID = value
	case FieldManufacturerName:
		rec.ManufacturerName = value
	case FieldManufacturerArticleNumber:
		rec.ManufacturerArticleNumber = value
	case FieldRecommendedPrice:
		rec.RecommendedPrice = p.parseDecimal(value, field, lineNo)
	case FieldPurchasePrice:
		rec.PurchasePrice = p.parseDecimal(value, field, lineNo)
	case FieldTaxRate:
		rec.TaxRate = p.parseDecimal(value, field, lineNo)
	case FieldWeight:
		rec.Weight = p.parseDecimal(value, field, lineNo)
	case FieldBrandText:
		rec.BrandText = value
	case FieldImageURL:
		rec.ImageURL = value
	case FieldLongText1:
		rec.LongText1 = value
	case FieldLongText2:
		rec.LongText2 = value
	}
}

// parseDecimal behandelt deutsche Dezimalschreibweise ("1.234,56").
// Leere Werte bleiben nil, nicht null.
func (p *Parser) parseDecimal(value string, field Field, lineNo int) *decimal.Decimal {
	if value == "" {
		return nil
	}
	normalized := value
	if strings.Contains(normalized, ",") {
		normalized = strings.ReplaceAll(normalized, ".", "")
		normalized = strings.ReplaceAll(normalized, ",", ".")
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		p.log.Warn("Numerisches Feld nicht lesbar, bleibt leer",
			zap.Int("line", lineNo),
			zap.String("field", string(field)),
			zap.String("value", value))
		return nil
	}
	return &d
}
