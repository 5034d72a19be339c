package services

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/vinakademin/vinakademin-backend/models"
)

const ordersSheet = "Ordrar"

var orderColumns = []interface{}{
	"Order-ID", "Skapad", "Kund", "E-post", "Kurs", "Belopp", "Valuta", "Status", "Betald",
}

// OrdersWorkbook renders orders as an xlsx file. Orders must have User and
// Course preloaded.
func OrdersWorkbook(orders []models.Order) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ordersSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(ordersSheet, "A1", &orderColumns); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(ordersSheet, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, o := range orders {
		paid := ""
		if o.PaidAt != nil {
			paid = o.PaidAt.Format("2006-01-02 15:04")
		}
		amount, _ := o.Amount.Float64()
		row := []interface{}{
			o.ID.String(),
			o.CreatedAt.Format("2006-01-02 15:04"),
			o.User.FullName,
			o.User.Email,
			o.Course.Title,
			amount,
			o.Currency,
			string(o.Status),
			paid,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(ordersSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write order row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(ordersSheet, "A", "A", 38); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(ordersSheet, "B", "I", 18); err != nil {
		return nil, err
	}

	return f.WriteToBuffer()
}
