package services

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"datanorm-bridge/models"
)

// SummaryBuilder erzeugt die Stammdaten-Übersicht eines Laufs als
// Arbeitsmappe: eine Zeile pro Entität (Typ, Name, GLN). Reihenfolge
// ist deterministisch: Lieferant zuerst, dann Hersteller nach Name,
// dann Marken nach Name.
type SummaryBuilder struct{}

const summarySheet = "Stammdaten"

// WriteFile schreibt die Arbeitsmappe an den gegebenen Pfad.
func (b *SummaryBuilder) WriteFile(path string, supplier *models.Supplier, manufacturers []*models.Manufacturer, brands []*models.Brand) error {
	wb := excelize.NewFile()
	defer wb.Close()

	if err := wb.SetSheetName(wb.GetSheetName(0), summarySheet); err != nil {
		return err
	}

	rowNum := 1
	writeRow := func(cells ...string) error {
		for i, v := range cells {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
			if err != nil {
				return err
			}
			if err := wb.SetCellValue(summarySheet, cell, v); err != nil {
				return err
			}
		}
		rowNum++
		return nil
	}

	if err := writeRow("Typ", "Name", "GLN"); err != nil {
		return err
	}

	if supplier != nil {
		if err := writeRow("Lieferant", supplier.Name, glnOrEmpty(supplier.GLN)); err != nil {
			return err
		}
	}

	sorted := make([]*models.Manufacturer, len(manufacturers))
	copy(sorted, manufacturers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, m := range sorted {
		if err := writeRow("Hersteller", m.Name, glnOrEmpty(m.GLN)); err != nil {
			return err
		}
	}

	sortedBrands := make([]*models.Brand, len(brands))
	copy(sortedBrands, brands)
	sort.Slice(sortedBrands, func(i, j int) bool { return sortedBrands[i].Name < sortedBrands[j].Name })
	for _, brand := range sortedBrands {
		if err := writeRow("Marke", brand.Name, brand.DerivedKey); err != nil {
			return err
		}
	}

	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("Übersicht speichern: %w", err)
	}
	return nil
}

func glnOrEmpty(gln *string) string {
	if gln == nil {
		return ""
	}
	return *gln
}
