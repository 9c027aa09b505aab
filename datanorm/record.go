package datanorm

import "github.com/shopspring/decimal"

// SourceRecord ist eine geparste Datenzeile der DATANORM-Quelldatei.
// Das Objekt ist nach dem Parsen unveränderlich und lebt nur für die
// Dauer eines Konvertierungslaufs.
type SourceRecord struct {
	Line int // Zeilennummer in der Quelldatei, für Log-Ausgaben

	ArticleNumber string
	EAN           string
	Description   string

	SupplierGLN        string
	SupplierExternalID string
	SupplierName       string

	ManufacturerGLN        string
	ManufacturerExternalID string
	ManufacturerName       string

	ManufacturerArticleNumber string

	// Preise und Gewicht: nil bedeutet "nicht angegeben", nicht null.
	RecommendedPrice *decimal.Decimal
	PurchasePrice    *decimal.Decimal
	TaxRate          *decimal.Decimal
	Weight           *decimal.Decimal

	BrandText string
	ImageURL  string
	LongText1 string
	LongText2 string
}
