/*
reconcile.go - Reconciliation harness

PURPOSE:
  Compares engine output with an independently derived reference dataset
  and reports where they first disagree. It is a debugging aid: it stops
  at the first divergence instead of collecting every difference.

DATASET SHAPE:
  location -> field -> category -> Money

  location  a month ("2024-03") or a day ("2024-03-15")
  field     a row column ("Final", "Slush", ...) or a timeline series
            ("Balance", "Refill", ...)
  category  a category id, plus "total" for aggregate rows

  References are usually loaded from JSON with the same nesting (see
  factory.ParseDataset), so no engine-specific serialization is needed.

WALK ORDER:
  Locations, fields and categories are each visited in sorted order. A key
  present on one side only is a structural mismatch; otherwise the values
  are compared exactly.

SEE ALSO:
  - slush.go: SnapshotsToDataset input
  - refill.go: TimelinesToDataset input
*/
package generic

import (
	"fmt"
	"sort"
)

// Dataset is the nested location -> field -> category -> value map.
type Dataset map[string]map[string]map[CategoryID]Money

// Set stores one value, creating inner maps as needed.
func (d Dataset) Set(location, field string, category CategoryID, v Money) {
	fields, ok := d[location]
	if !ok {
		fields = make(map[string]map[CategoryID]Money)
		d[location] = fields
	}
	cats, ok := fields[field]
	if !ok {
		cats = make(map[CategoryID]Money)
		fields[field] = cats
	}
	cats[category] = v
}

// Get returns one value.
func (d Dataset) Get(location, field string, category CategoryID) (Money, bool) {
	v, ok := d[location][field][category]
	return v, ok
}

// DiffKind says what kind of divergence was found.
type DiffKind string

const (
	DiffMissingInComputed  DiffKind = "missing_in_computed"
	DiffMissingInReference DiffKind = "missing_in_reference"
	DiffValueMismatch      DiffKind = "value_mismatch"
)

// Diff is the first divergence between two datasets. Field and Category
// are empty when the mismatch is at a shallower level.
type Diff struct {
	Location  string     `json:"location"`
	Field     string     `json:"field,omitempty"`
	Category  CategoryID `json:"category,omitempty"`
	Kind      DiffKind   `json:"kind"`
	Computed  *Money     `json:"computed,omitempty"`
	Reference *Money     `json:"reference,omitempty"`
}

func (d *Diff) String() string {
	val := func(m *Money) string {
		if m == nil {
			return "<missing>"
		}
		return m.String()
	}
	key := d.Location
	if d.Field != "" {
		key += "/" + d.Field
	}
	if d.Category != "" {
		key += "/" + string(d.Category)
	}
	return fmt.Sprintf("%s at %s: computed=%s reference=%s", d.Kind, key, val(d.Computed), val(d.Reference))
}

// Reconcile returns the first divergence between computed and reference,
// or nil when they are identical.
func Reconcile(computed, reference Dataset) *Diff {
	for _, loc := range unionKeys(computed, reference) {
		cf, inC := computed[loc]
		rf, inR := reference[loc]
		if d := presence(inC, inR, Diff{Location: loc}); d != nil {
			return d
		}
		for _, field := range unionKeys(cf, rf) {
			cc, inC := cf[field]
			rc, inR := rf[field]
			if d := presence(inC, inR, Diff{Location: loc, Field: field}); d != nil {
				return d
			}
			for _, cat := range unionKeys(cc, rc) {
				cv, inC := cc[cat]
				rv, inR := rc[cat]
				base := Diff{Location: loc, Field: field, Category: cat}
				if d := presence(inC, inR, base); d != nil {
					if inC {
						d.Computed = &cv
					} else {
						d.Reference = &rv
					}
					return d
				}
				if cv != rv {
					base.Kind = DiffValueMismatch
					base.Computed = &cv
					base.Reference = &rv
					return &base
				}
			}
		}
	}
	return nil
}

func presence(inComputed, inReference bool, d Diff) *Diff {
	switch {
	case !inComputed:
		d.Kind = DiffMissingInComputed
	case !inReference:
		d.Kind = DiffMissingInReference
	default:
		return nil
	}
	return &d
}

func unionKeys[K ~string, V any](a, b map[K]V) []K {
	seen := make(map[K]struct{}, len(a)+len(b))
	keys := make([]K, 0, len(a)+len(b))
	for _, m := range []map[K]V{a, b} {
		for k := range m {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// =============================================================================
// CONVERTERS
// =============================================================================

// Timeline series names used by TimelinesToDataset.
const (
	SeriesBalance    = "Balance"
	SeriesAfterDelta = "AfterDelta"
	SeriesRefill     = "Refill"
	SeriesOverflow   = "Overflow"
)

// TimelinesToDataset lays capped-refill timelines out by day. Each series
// also gets a "total" row summed across categories.
func TimelinesToDataset(timelines map[CategoryID]*EnvelopeTimeline) Dataset {
	d := make(Dataset)
	for id, tl := range timelines {
		for i, day := range tl.Days {
			loc := day.String()
			series := []struct {
				name string
				v    Money
			}{
				{SeriesBalance, tl.Balances[i]},
				{SeriesAfterDelta, tl.AfterDelta[i]},
				{SeriesRefill, tl.Refills[i]},
				{SeriesOverflow, tl.Overflow[i]},
			}
			for _, s := range series {
				d.Set(loc, s.name, id, s.v)
				total, _ := d.Get(loc, s.name, TotalKey)
				d.Set(loc, s.name, TotalKey, total.Add(s.v))
			}
		}
	}
	return d
}

// SnapshotsToDataset lays slush-fund snapshots out by month, one field per
// Row column, with the Total row under "total".
func SnapshotsToDataset(snapshots map[Month]*MonthSnapshot) Dataset {
	d := make(Dataset)
	for m, snap := range snapshots {
		loc := m.String()
		for _, f := range RowFields {
			for id, row := range snap.Rows {
				d.Set(loc, f.Name, id, f.Get(row))
			}
			d.Set(loc, f.Name, TotalKey, f.Get(snap.Total))
		}
	}
	return d
}
