// Agent, building, and parcel persistence. Rows are upserted wholesale each
// tick; the api_key_hash column is written only by SetAgentKeyHash so a state
// save can never clobber a credential.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/buildings"
)

type agentRow struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	AIModel        string `db:"ai_model"`
	Profession     string `db:"profession"`
	EmployerID     string `db:"employer_id"`
	AccountID      string `db:"account_id"`
	Reputation     int    `db:"reputation"`
	Hunger         int    `db:"hunger"`
	Rest           int    `db:"rest"`
	Fun            int    `db:"fun"`
	Status         string `db:"status"`
	JailedAtTick   uint64 `db:"jailed_at_tick"`
	LastActiveTick uint64 `db:"last_active_tick"`
	JoinedTick     uint64 `db:"joined_tick"`
	APIKeyHash     string `db:"api_key_hash"`
	StatsJSON      string `db:"stats_json"`
}

func (r *agentRow) toAgent() (*agents.Agent, error) {
	a := &agents.Agent{
		ID:             r.ID,
		Name:           r.Name,
		AIModel:        r.AIModel,
		Profession:     agents.Profession(r.Profession),
		EmployerID:     r.EmployerID,
		AccountID:      r.AccountID,
		Reputation:     r.Reputation,
		Hunger:         r.Hunger,
		Rest:           r.Rest,
		Fun:            r.Fun,
		Status:         agents.Status(r.Status),
		JailedAtTick:   r.JailedAtTick,
		LastActiveTick: r.LastActiveTick,
		JoinedTick:     r.JoinedTick,
	}
	if err := json.Unmarshal([]byte(r.StatsJSON), &a.Stats); err != nil {
		return nil, fmt.Errorf("agent %s stats: %w", r.ID, err)
	}
	return a, nil
}

// SaveAgents upserts all agents in one transaction.
func (db *DB) SaveAgents(list []*agents.Agent) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO agents
		(id, name, ai_model, profession, employer_id, account_id, reputation,
		 hunger, rest, fun, status, jailed_at_tick, last_active_tick, joined_tick, stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 name=excluded.name, ai_model=excluded.ai_model, profession=excluded.profession,
		 employer_id=excluded.employer_id, account_id=excluded.account_id,
		 reputation=excluded.reputation, hunger=excluded.hunger, rest=excluded.rest,
		 fun=excluded.fun, status=excluded.status, jailed_at_tick=excluded.jailed_at_tick,
		 last_active_tick=excluded.last_active_tick, joined_tick=excluded.joined_tick,
		 stats_json=excluded.stats_json`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range list {
		statsJSON, _ := json.Marshal(a.Stats)
		_, err := stmt.Exec(
			a.ID, a.Name, a.AIModel, string(a.Profession), a.EmployerID, a.AccountID,
			a.Reputation, a.Hunger, a.Rest, a.Fun, string(a.Status),
			a.JailedAtTick, a.LastActiveTick, a.JoinedTick, string(statsJSON),
		)
		if err != nil {
			return fmt.Errorf("upsert agent %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// LoadAgents returns all agents in insertion order.
func (db *DB) LoadAgents() ([]*agents.Agent, error) {
	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT * FROM agents ORDER BY rowid"); err != nil {
		return nil, err
	}
	out := make([]*agents.Agent, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toAgent()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// SetAgentKeyHash stores the one-way hash of an agent's API credential.
func (db *DB) SetAgentKeyHash(agentID, hash string) error {
	_, err := db.conn.Exec("UPDATE agents SET api_key_hash = ? WHERE id = ?", hash, agentID)
	return err
}

// AgentKeyHash returns the stored credential hash for an agent.
func (db *DB) AgentKeyHash(agentID string) (string, error) {
	var h string
	err := db.conn.Get(&h, "SELECT api_key_hash FROM agents WHERE id = ?", agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("agent %s not found", agentID)
	}
	return h, err
}

type buildingRow struct {
	ID            string  `db:"id"`
	Type          string  `db:"type"`
	Level         int     `db:"level"`
	OwnerID       string  `db:"owner_id"`
	AccountID     string  `db:"account_id"`
	X             int     `db:"x"`
	Z             int     `db:"z"`
	W             int     `db:"w"`
	D             int     `db:"d"`
	AssetKey      string  `db:"asset_key"`
	RotY          float64 `db:"rot_y"`
	Status        string  `db:"status"`
	AccruedUpkeep int64   `db:"accrued_upkeep"`
	CreatedTick   uint64  `db:"created_tick"`
	EmployeesJSON string  `db:"employees_json"`
}

// SaveBuildings upserts all buildings in one transaction.
func (db *DB) SaveBuildings(list []*buildings.Building) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO buildings
		(id, type, level, owner_id, account_id, x, z, w, d, asset_key, rot_y,
		 status, accrued_upkeep, created_tick, employees_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 type=excluded.type, level=excluded.level, owner_id=excluded.owner_id,
		 account_id=excluded.account_id, x=excluded.x, z=excluded.z, w=excluded.w,
		 d=excluded.d, asset_key=excluded.asset_key, rot_y=excluded.rot_y,
		 status=excluded.status, accrued_upkeep=excluded.accrued_upkeep,
		 created_tick=excluded.created_tick, employees_json=excluded.employees_json`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range list {
		empJSON, _ := json.Marshal(b.Employees)
		_, err := stmt.Exec(
			b.ID, string(b.Type), b.Level, b.OwnerID, b.AccountID,
			b.X, b.Z, b.W, b.D, b.AssetKey, b.RotY,
			string(b.Status), b.AccruedUpkeep, b.CreatedTick, string(empJSON),
		)
		if err != nil {
			return fmt.Errorf("upsert building %s: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteBuilding removes a building row. Only used by construction rollback.
func (db *DB) DeleteBuilding(id string) error {
	_, err := db.conn.Exec("DELETE FROM buildings WHERE id = ?", id)
	return err
}

// LoadBuildings returns all buildings in insertion order.
func (db *DB) LoadBuildings() ([]*buildings.Building, error) {
	var rows []buildingRow
	if err := db.conn.Select(&rows, "SELECT * FROM buildings ORDER BY rowid"); err != nil {
		return nil, err
	}
	out := make([]*buildings.Building, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		b := &buildings.Building{
			ID:            r.ID,
			Type:          buildings.Type(r.Type),
			Level:         r.Level,
			OwnerID:       r.OwnerID,
			AccountID:     r.AccountID,
			X:             r.X,
			Z:             r.Z,
			W:             r.W,
			D:             r.D,
			AssetKey:      r.AssetKey,
			RotY:          r.RotY,
			Status:        buildings.Status(r.Status),
			AccruedUpkeep: r.AccruedUpkeep,
			CreatedTick:   r.CreatedTick,
		}
		if err := json.Unmarshal([]byte(r.EmployeesJSON), &b.Employees); err != nil {
			return nil, fmt.Errorf("building %s employees: %w", r.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Parcel is an owned patch of land.
type Parcel struct {
	X          int    `db:"x"`
	Z          int    `db:"z"`
	OwnerID    string `db:"owner_id"`
	BoughtTick uint64 `db:"bought_tick"`
}

// SaveParcel records land ownership.
func (db *DB) SaveParcel(p Parcel) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO parcels (x, z, owner_id, bought_tick) VALUES (?, ?, ?, ?)",
		p.X, p.Z, p.OwnerID, p.BoughtTick,
	)
	return err
}

// LoadParcels returns all owned parcels.
func (db *DB) LoadParcels() ([]Parcel, error) {
	var out []Parcel
	err := db.conn.Select(&out, "SELECT * FROM parcels ORDER BY bought_tick")
	return out, err
}
