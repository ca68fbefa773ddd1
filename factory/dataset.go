package factory

import (
	"encoding/json"
	"fmt"

	"github.com/warp/envelope-engine/generic"
)

// DatasetRowJSON is one cell of a dataset in flat form.
type DatasetRowJSON struct {
	Location string        `json:"location"`
	Field    string        `json:"field"`
	Category string        `json:"category"`
	Value    generic.Money `json:"value"`
}

// ParseDataset parses a reference dataset. Two shapes are accepted:
//
//	{"2025-01": {"Final": {"rent": 1850, "total": 1850}}}
//	[{"location": "2025-01", "field": "Final", "category": "rent", "value": 1850}]
//
// Spreadsheet exports usually come out in the flat form.
func ParseDataset(data []byte) (generic.Dataset, error) {
	var nested generic.Dataset
	if err := json.Unmarshal(data, &nested); err == nil {
		if nested == nil {
			nested = generic.Dataset{}
		}
		return nested, nil
	}

	var rows []DatasetRowJSON
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: dataset is neither nested nor a row list: %v", generic.ErrInvalidInput, err)
	}
	d := generic.Dataset{}
	for i, r := range rows {
		if r.Location == "" || r.Field == "" || r.Category == "" {
			return nil, &generic.InvalidInputError{Field: "dataset", Reason: fmt.Sprintf("row %d: location, field and category are required", i+1)}
		}
		if _, dup := d.Get(r.Location, r.Field, generic.CategoryID(r.Category)); dup {
			return nil, &generic.InvalidInputError{Field: "dataset", Reason: fmt.Sprintf("row %d: %s/%s/%s given twice", i+1, r.Location, r.Field, r.Category)}
		}
		d.Set(r.Location, r.Field, generic.CategoryID(r.Category), r.Value)
	}
	return d, nil
}

// MarshalDataset writes a dataset in the nested form with stable key order.
func MarshalDataset(d generic.Dataset) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
