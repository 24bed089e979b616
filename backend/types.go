package backend

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/devadigapratham/microdose/dosing"
)

// number accepts numeric columns serialized either as JSON numbers or as
// decimal strings, and remembers whether a value was present.
type number struct {
	value float64
	set   bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = number{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = number{}
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*n = number{value: v, set: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = number{value: v, set: true}
	return nil
}

func (n number) ptr() *float64 {
	if !n.set {
		return nil
	}
	return dosing.Float(n.value)
}

type activeMaterial struct {
	MaterialID      int64  `json:"material_id"`
	Title           string `json:"title"`
	BarcodeID       string `json:"barcode_id"`
	MaximumQuantity number `json:"maximum_quantity"`
	CurrentQuantity number `json:"current_quantity"`
	UnitOfMeasure   string `json:"unit_of_measure"`
	Margin          number `json:"margin"`
	Status          string `json:"status"`
}

func (a activeMaterial) line() dosing.MaterialLine {
	return dosing.MaterialLine{
		ID:             strconv.FormatInt(a.MaterialID, 10),
		Title:          a.Title,
		BarcodeCode:    a.BarcodeID,
		SetPoint:       a.MaximumQuantity.ptr(),
		ActualQuantity: a.CurrentQuantity.ptr(),
		Unit:           a.UnitOfMeasure,
		Margin:         a.Margin.ptr(),
	}
}

type recipeMaterial struct {
	RecipeMaterialID int64  `json:"recipe_material_id"`
	RecipeID         int64  `json:"recipe_id"`
	MaterialID       int64  `json:"material_id"`
	SetPoint         number `json:"set_point"`
	Actual           number `json:"actual"`
	Status           string `json:"status"`
	Margin           number `json:"margin"`
}

// line joins a recipe material with its material record. Lines without a
// recipe_material_id are numbered by position, starting at 1.
func (rm recipeMaterial) line(idx int, m material) dosing.MaterialLine {
	id := rm.RecipeMaterialID
	if id == 0 {
		id = int64(idx + 1)
	}
	title := m.Title
	if title == "" {
		title = fmt.Sprintf("Material #%d", rm.MaterialID)
	}
	return dosing.MaterialLine{
		ID:             strconv.FormatInt(id, 10),
		Title:          title,
		BarcodeCode:    m.BarcodeID,
		SetPoint:       rm.SetPoint.ptr(),
		ActualQuantity: rm.Actual.ptr(),
		Unit:           m.UnitOfMeasure,
		Margin:         m.Margin.ptr(),
	}
}

type recipe struct {
	RecipeID int64  `json:"recipe_id"`
	Name     string `json:"name"`
}

func (r recipe) name(id int64) string {
	if r.Name == "" {
		return fmt.Sprintf("Recipe #%d", id)
	}
	return r.Name
}

type material struct {
	MaterialID    int64  `json:"material_id"`
	Title         string `json:"title"`
	BarcodeID     string `json:"barcode_id"`
	UnitOfMeasure string `json:"unit_of_measure"`
	Margin        number `json:"margin"`
}
