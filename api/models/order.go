// api/models/order.go
package models

import (
	"github.com/devadigapratham/microdose/dosing"
)

// LineRequest is one material line of an order posted by the UI shell
type LineRequest struct {
	ID          string   `json:"id" binding:"required"`
	Title       string   `json:"title" binding:"required"`
	BarcodeCode string   `json:"barcode"`
	SetPoint    *float64 `json:"set_point"`
	Actual      *float64 `json:"actual"`
	Unit        string   `json:"unit"`
	Margin      *float64 `json:"margin"`
}

// OrderRequest opens a new order
type OrderRequest struct {
	OrderID    string        `json:"order_id"`
	RecipeName string        `json:"recipe_name"`
	Lines      []LineRequest `json:"lines" binding:"required,min=1,dive"`
}

// FetchOrderRequest opens an order seeded from the REST backend
type FetchOrderRequest struct {
	OrderID string `json:"order_id"`
}

// ConfirmRequest carries the entered actual quantity
type ConfirmRequest struct {
	Actual *float64 `json:"actual" binding:"required"`
}

// SortOrderRequest replaces the saved order of a listing page
type SortOrderRequest struct {
	IDs []string `json:"ids"`
}

// ToLines converts the request lines to dosing lines
func (r OrderRequest) ToLines() []dosing.MaterialLine {
	lines := make([]dosing.MaterialLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, dosing.MaterialLine{
			ID:             l.ID,
			Title:          l.Title,
			BarcodeCode:    l.BarcodeCode,
			SetPoint:       l.SetPoint,
			ActualQuantity: l.Actual,
			Unit:           l.Unit,
			Margin:         l.Margin,
		})
	}
	return lines
}

// LineView is a material line as the order table shows it
type LineView struct {
	dosing.MaterialLine
	ErrorPercent string `json:"error_percent,omitempty"`
	Current      bool   `json:"current"`
}

// OrderView is the read model of an open order
type OrderView struct {
	OrderID        string             `json:"order_id"`
	RecipeName     string             `json:"recipe_name"`
	CurrentIndex   int                `json:"current_index"`
	Complete       bool               `json:"complete"`
	ScanPending    bool               `json:"scan_pending"`
	BarcodeMatched bool               `json:"barcode_matched"`
	LastScan       *dosing.ScanResult `json:"last_scan,omitempty"`
	Lines          []LineView         `json:"lines"`
}

// NewOrderView renders a workflow state for the UI
func NewOrderView(s dosing.State) OrderView {
	v := OrderView{
		OrderID:        s.Order.OrderID,
		RecipeName:     s.Order.RecipeName,
		CurrentIndex:   s.Order.CurrentIndex,
		Complete:       s.Order.Complete,
		ScanPending:    s.ScanPending,
		BarcodeMatched: s.BarcodeMatched,
		LastScan:       s.LastScan,
		Lines:          make([]LineView, 0, len(s.Order.Lines)),
	}
	for i, l := range s.Order.Lines {
		lv := LineView{MaterialLine: l, Current: !s.Order.Complete && i == s.Order.CurrentIndex}
		if pct, ok := dosing.ErrorPercent(l.SetPoint, l.ActualQuantity); ok {
			lv.ErrorPercent = pct
		}
		v.Lines = append(v.Lines, lv)
	}
	return v
}
