/*
category.go - The closed category set

PURPOSE:
  Every transaction and envelope names a category. The set of valid
  categories is fixed per run and owned by the caller; the engine only
  checks membership and never invents a category.

HOW IT WORKS:
  1. The domain package (budget) builds a CategorySet with kinds
  2. The caller passes it to validation and to the slush-fund simulator
  3. Validation turns unknown IDs into UnknownCategoryError

WHY NOT A GLOBAL REGISTRY:
  Two runs with different category sets can share a process (tests, API
  requests), so the set travels as a value.

SEE ALSO:
  - budget/categories.go: The default personal-finance set
*/
package generic

import "sort"

// CategoryKind groups categories by how money moves through them.
type CategoryKind string

const (
	KindExpense  CategoryKind = "expense"
	KindIncome   CategoryKind = "income"
	KindInternal CategoryKind = "internal" // transfers between own accounts, must net to zero
	KindTodo     CategoryKind = "todo"     // unassigned sentinel
)

// Category is one member of a CategorySet.
type Category struct {
	ID   CategoryID
	Name string
	Kind CategoryKind
}

// CategorySet is an immutable, closed set of categories.
type CategorySet struct {
	byID map[CategoryID]Category
}

// NewCategorySet builds a set; duplicate or empty IDs are rejected.
func NewCategorySet(categories ...Category) (CategorySet, error) {
	set := CategorySet{byID: make(map[CategoryID]Category, len(categories))}
	for _, c := range categories {
		if c.ID == "" || c.ID == TotalKey {
			return CategorySet{}, &InvalidInputError{Field: "category", Category: c.ID, Reason: "reserved or empty id"}
		}
		if _, dup := set.byID[c.ID]; dup {
			return CategorySet{}, &InvalidInputError{Field: "category", Category: c.ID, Reason: "duplicate id"}
		}
		set.byID[c.ID] = c
	}
	return set, nil
}

// Contains reports membership.
func (s CategorySet) Contains(id CategoryID) bool {
	_, ok := s.byID[id]
	return ok
}

// Lookup returns the category for id.
func (s CategorySet) Lookup(id CategoryID) (Category, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Validate returns UnknownCategoryError for ids outside the set.
func (s CategorySet) Validate(id CategoryID) error {
	if !s.Contains(id) {
		return &UnknownCategoryError{Category: id}
	}
	return nil
}

// IDs returns all category ids sorted.
func (s CategorySet) IDs() []CategoryID {
	ids := make([]CategoryID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	SortCategoryIDs(ids)
	return ids
}

// ByKind returns the sorted ids of one kind.
func (s CategorySet) ByKind(kind CategoryKind) []CategoryID {
	var ids []CategoryID
	for id, c := range s.byID {
		if c.Kind == kind {
			ids = append(ids, id)
		}
	}
	SortCategoryIDs(ids)
	return ids
}

// List returns all categories sorted by id.
func (s CategorySet) List() []Category {
	out := make([]Category, 0, len(s.byID))
	for _, id := range s.IDs() {
		out = append(out, s.byID[id])
	}
	return out
}

func (s CategorySet) Len() int { return len(s.byID) }

// ValidateTransactions checks shape and category membership of every
// transaction before any simulation starts.
func (s CategorySet) ValidateTransactions(txs []Transaction) error {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return err
		}
		if err := s.Validate(tx.Category); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEnvelopes checks every config and its category membership.
func (s CategorySet) ValidateEnvelopes(configs map[CategoryID]EnvelopeConfig) error {
	for id, cfg := range configs {
		if cfg.Category != id {
			return &InvalidInputError{Field: "category", Category: id, Reason: "config keyed under a different category " + string(cfg.Category)}
		}
		if err := s.Validate(id); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SortCategoryIDs sorts in place; all map walks in the engine go through it
// so results are deterministic.
func SortCategoryIDs(ids []CategoryID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
