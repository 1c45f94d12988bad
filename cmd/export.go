package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/mobilifiver/feedwise/internal/model"
)

var (
	exportOut  string
	exportDays int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog and recent changes to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		snapshot, err := st.SnapshotProducts(ctx)
		if err != nil {
			return eris.Wrap(err, "export: load products")
		}
		since := time.Now().UTC().AddDate(0, 0, -exportDays)
		changes, err := st.ChangesSince(ctx, since)
		if err != nil {
			return eris.Wrap(err, "export: load changes")
		}

		f := xlsx.NewFile()
		if err := addProductsSheet(f, snapshot); err != nil {
			return err
		}
		if err := addChangesSheet(f, changes); err != nil {
			return err
		}
		if err := f.Save(exportOut); err != nil {
			return eris.Wrapf(err, "export: save %s", exportOut)
		}

		zap.L().Info("export complete",
			zap.String("file", exportOut),
			zap.Int("products", len(snapshot)),
			zap.Int("changes", len(changes)),
		)
		fmt.Printf("Wrote %d products and %d changes to %s\n", len(snapshot), len(changes), exportOut)
		return nil
	},
}

func addProductsSheet(f *xlsx.File, snapshot map[string]model.Product) error {
	sheet, err := f.AddSheet("Products")
	if err != nil {
		return eris.Wrap(err, "export: add products sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Title", "Brand", "Category", "Price", "Sale price", "Availability", "Color", "Material", "Last synced"} {
		header.AddCell().Value = h
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := snapshot[id]
		v := p.View()
		row := sheet.AddRow()
		row.AddCell().Value = p.ID
		row.AddCell().Value = p.Title
		row.AddCell().Value = p.Brand
		row.AddCell().Value = v.Category
		row.AddCell().Value = priceCell(p.Price)
		row.AddCell().Value = priceCell(p.SalePrice)
		row.AddCell().Value = p.Availability
		row.AddCell().Value = p.Color
		row.AddCell().Value = p.Material
		row.AddCell().Value = p.LastSyncedAt.Format("2006-01-02 15:04")
	}
	return nil
}

func addChangesSheet(f *xlsx.File, changes []model.FieldChange) error {
	sheet, err := f.AddSheet("Changes")
	if err != nil {
		return eris.Wrap(err, "export: add changes sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Product", "Field", "Old value", "New value", "Changed at", "Run"} {
		header.AddCell().Value = h
	}
	for _, c := range changes {
		row := sheet.AddRow()
		row.AddCell().Value = c.ProductID
		row.AddCell().Value = c.Field
		row.AddCell().Value = c.OldValue
		row.AddCell().Value = c.NewValue
		row.AddCell().Value = c.ChangedAt.Format("2006-01-02 15:04")
		row.AddCell().Value = strconv.FormatInt(c.RunID, 10)
	}
	return nil
}

func priceCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "catalog.xlsx", "output file path")
	exportCmd.Flags().IntVar(&exportDays, "days", 30, "include changes from the last N days")
	rootCmd.AddCommand(exportCmd)
}
