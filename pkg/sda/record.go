package sda

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Column names returned by the query.
const (
	ColMapUnitSymbol    = "map_unit_symbol"
	ColMapUnitName      = "map_unit_name"
	ColComponentName    = "component_name"
	ColComponentPercent = "component_percent"
	ColShrinkSwell      = "shrink_swell"
	ColPlasticityIndex  = "plasticity_index"
	ColDrainageClass    = "drainage_class"
)

// Record is the soil attributes of one horizon row. Numeric fields are nil
// when the survey has no value.
type Record struct {
	MapUnitSymbol    string
	MapUnitName      string
	ComponentName    string
	ComponentPercent *float64
	ShrinkSwell      *float64
	PlasticityIndex  *float64
	DrainageClass    string

	// Raw is the zipped header/value row as returned by the service.
	Raw map[string]any
}

func recordFromRow(row map[string]any) *Record {
	return &Record{
		MapUnitSymbol:    stringValue(row[ColMapUnitSymbol]),
		MapUnitName:      stringValue(row[ColMapUnitName]),
		ComponentName:    stringValue(row[ColComponentName]),
		ComponentPercent: floatValue(row[ColComponentPercent]),
		ShrinkSwell:      floatValue(row[ColShrinkSwell]),
		PlasticityIndex:  floatValue(row[ColPlasticityIndex]),
		DrainageClass:    stringValue(row[ColDrainageClass]),
		Raw:              row,
	}
}

// ValueOr returns *p, or def when p is nil.
func ValueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func floatValue(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}
