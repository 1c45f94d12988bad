package catalog

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mobilifiver/feedwise/internal/model"
)

// Summary reports the outcome of one reconciliation.
// Added + Updated + Unchanged == Total always holds.
type Summary struct {
	Total     int
	Added     int
	Updated   int
	Unchanged int
	Removed   int
}

// Counts converts the summary to store counts.
func (s Summary) Counts() model.ImportCounts {
	return model.ImportCounts{
		Total:   s.Total,
		Added:   s.Added,
		Updated: s.Updated,
		Removed: s.Removed,
	}
}

// Reconcile diffs incoming feed items against the snapshot and computes the
// write set for this run. It is pure: no I/O, no store access. Items without
// an ID are skipped with a warning and excluded from every count.
//
// Seen-but-unchanged products still appear in Updates so their last-synced
// stamp advances; they produce no change rows and count as unchanged.
// Removal is soft: IDs absent from the feed are only counted.
func Reconcile(snapshot map[string]model.Product, items []map[string]any, now time.Time) (*model.ChangeSet, Summary) {
	cs := &model.ChangeSet{
		SeenIDs: make(map[string]struct{}, len(items)),
	}
	var sum Summary

	for _, raw := range items {
		item := normalizeItem(raw)
		id := stringValue(item, "id")
		if id == "" {
			zap.L().Warn("feed item without id, skipping",
				zap.String("title", stringValue(item, "title")),
			)
			continue
		}
		cs.SeenIDs[id] = struct{}{}

		existing, ok := snapshot[id]
		if !ok {
			cs.Creates = append(cs.Creates, buildProduct(id, item, now))
			sum.Added++
			continue
		}

		changes := diffProduct(&existing, item, now)
		existing.LastSyncedAt = now
		if len(changes) > 0 {
			existing.UpdatedAt = now
			cs.Changes = append(cs.Changes, changes...)
			sum.Updated++
		} else {
			sum.Unchanged++
		}
		cs.Updates = append(cs.Updates, existing)
	}

	for id := range snapshot {
		if _, seen := cs.SeenIDs[id]; !seen {
			cs.RemovedIDs = append(cs.RemovedIDs, id)
		}
	}
	sort.Strings(cs.RemovedIDs)
	sum.Removed = len(cs.RemovedIDs)

	sum.Total = sum.Added + sum.Updated + sum.Unchanged
	return cs, sum
}

// buildProduct creates a new Product from a normalized item.
func buildProduct(id string, item map[string]any, now time.Time) model.Product {
	p := model.Product{
		ID:           id,
		ItemGroupID:  stringValue(item, "item_group_id"),
		RawData:      item,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSyncedAt: now,
	}
	for _, f := range TrackedFields {
		switch f.Kind {
		case KindText:
			*f.Text(&p) = stringValue(item, f.Name)
		case KindPrice:
			*f.Price(&p) = parsePrice(item, f.Name)
		}
	}
	return p
}

// diffProduct applies tracked fields present in the item to the product and
// returns one FieldChange per differing field. Fields absent from the item
// are left untouched.
func diffProduct(p *model.Product, item map[string]any, now time.Time) []model.FieldChange {
	var changes []model.FieldChange
	for _, f := range TrackedFields {
		if _, present := item[f.Name]; !present {
			continue
		}

		var oldValue, newValue string
		changed := false

		switch f.Kind {
		case KindText:
			cur := f.Text(p)
			next := stringValue(item, f.Name)
			if next != *cur {
				oldValue, newValue = *cur, next
				*cur = next
				changed = true
			}
		case KindPrice:
			cur := f.Price(p)
			next := parsePrice(item, f.Name)
			if !priceEqual(*cur, next) {
				oldValue, newValue = formatPrice(*cur), formatPrice(next)
				*cur = next
				changed = true
			}
		}

		if changed {
			changes = append(changes, model.FieldChange{
				ProductID: p.ID,
				Field:     f.Name,
				OldValue:  oldValue,
				NewValue:  newValue,
				ChangedAt: now,
			})
		}
	}

	if len(changes) > 0 {
		p.RawData = item
	}
	return changes
}
