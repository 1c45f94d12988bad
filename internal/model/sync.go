package model

import "time"

// ImportRun records one reconciliation execution against the catalog.
// It is created before the feed is fetched and finalized exactly once,
// either with counts on success or an error message on failure.
type ImportRun struct {
	ID           int64      `json:"id"`
	Source       string     `json:"source"`
	VersionLabel string     `json:"version_label,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Success      bool       `json:"success"`
	Total        int        `json:"total"`
	Added        int        `json:"added"`
	Updated      int        `json:"updated"`
	Removed      int        `json:"removed"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ImportCounts holds the final tallies stamped onto a successful run.
type ImportCounts struct {
	Total   int `json:"total"`
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// FieldChange is one field-level mutation on one product during one run.
// Rows are append-only and reference the product by ID without ownership:
// change history outlives a product that later disappears from the feed.
type FieldChange struct {
	ID        int64     `json:"id"`
	ProductID string    `json:"product_id"`
	RunID     int64     `json:"run_id"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	ChangedAt time.Time `json:"changed_at"`
}

// ChangeSet is the computed write set of one reconciliation run. The store
// applies it in a single transaction; nothing in it survives a rollback.
type ChangeSet struct {
	Creates []Product
	Updates []Product
	Changes []FieldChange

	// SeenIDs are all usable incoming IDs; RemovedIDs are snapshot IDs absent
	// from SeenIDs. Removed products are left in place, only counted.
	SeenIDs    map[string]struct{}
	RemovedIDs []string
}
