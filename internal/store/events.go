// Feed event persistence. Events buffered during a tick land here as a single
// batch insert so a crash mid-pipeline cannot leave a partial batch.
package store

import (
	"encoding/json"
	"fmt"
)

// Event is a notable occurrence in the city.
type Event struct {
	Tick        uint64         `json:"tick" db:"tick"`
	Category    string         `json:"category" db:"category"`
	Description string         `json:"description" db:"description"`
	Meta        map[string]any `json:"meta,omitempty" db:"-"`
}

// Event categories.
const (
	CategoryEconomy = "economy"
	CategoryCrime   = "crime"
	CategoryAgent   = "agent"
	CategoryCity    = "city"
	CategoryPolicy  = "policy"
	CategorySeason  = "season"
)

// SaveEvents appends a tick's events in one transaction.
func (db *DB) SaveEvents(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		metaJSON := []byte("{}")
		if e.Meta != nil {
			metaJSON, err = json.Marshal(e.Meta)
			if err != nil {
				return fmt.Errorf("event meta: %w", err)
			}
		}
		_, err := tx.Exec(
			"INSERT INTO events (tick, category, description, meta_json) VALUES (?, ?, ?, ?)",
			e.Tick, e.Category, e.Description, string(metaJSON),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EventsSince returns events with tick > since, oldest first, capped at limit.
func (db *DB) EventsSince(since uint64, limit int) ([]Event, error) {
	rows, err := db.conn.Queryx(
		`SELECT tick, category, description, meta_json FROM events
		 WHERE tick > ? ORDER BY id ASC LIMIT ?`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var metaJSON string
		if err := rows.Scan(&e.Tick, &e.Category, &e.Description, &metaJSON); err != nil {
			return nil, err
		}
		if metaJSON != "" && metaJSON != "{}" {
			_ = json.Unmarshal([]byte(metaJSON), &e.Meta)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
