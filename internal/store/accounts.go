// Account storage and the conditional check-and-decrement debit primitive.
// The npc_pool account is the only account allowed to go negative; it is the
// accounting sink/source for money destroyed or minted.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Account owner kinds.
const (
	OwnerAgent      = "agent"
	OwnerBuilding   = "building"
	OwnerTreasury   = "treasury"
	OwnerDemandPool = "demand_pool"
	OwnerNPCPool    = "npc_pool"
)

// Well-known singleton account IDs.
const (
	AccountTreasury   = "treasury"
	AccountDemandPool = "demand_pool"
	AccountNPCPool    = "npc_pool"
)

// ErrInsufficientFunds is returned when a conditional debit would take a
// non-pool account below zero.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrAccountNotFound is returned when an account ID does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Account is a monetary balance owned by exactly one entity.
type Account struct {
	ID        string `db:"id"`
	OwnerKind string `db:"owner_kind"`
	OwnerID   string `db:"owner_id"`
	Balance   int64  `db:"balance"`
	Reserved  int64  `db:"reserved"`
	Status    string `db:"status"`
}

// CreateAccount inserts a new zero-balance account.
func (db *DB) CreateAccount(id, ownerKind, ownerID string) error {
	_, err := db.conn.Exec(
		"INSERT INTO accounts (id, owner_kind, owner_id, balance) VALUES (?, ?, ?, 0)",
		id, ownerKind, ownerID,
	)
	if err != nil {
		return fmt.Errorf("create account %s: %w", id, err)
	}
	return nil
}

// DeleteAccount removes an account. Only used by construction rollback.
func (db *DB) DeleteAccount(id string) error {
	_, err := db.conn.Exec("DELETE FROM accounts WHERE id = ?", id)
	return err
}

// EnsureSystemAccounts creates the treasury, demand pool, and NPC pool
// accounts if they do not exist yet.
func (db *DB) EnsureSystemAccounts() error {
	rows := []struct{ id, kind string }{
		{AccountTreasury, OwnerTreasury},
		{AccountDemandPool, OwnerDemandPool},
		{AccountNPCPool, OwnerNPCPool},
	}
	for _, r := range rows {
		_, err := db.conn.Exec(
			"INSERT OR IGNORE INTO accounts (id, owner_kind, owner_id, balance) VALUES (?, ?, '', 0)",
			r.id, r.kind,
		)
		if err != nil {
			return fmt.Errorf("ensure account %s: %w", r.id, err)
		}
	}
	return nil
}

// Balance returns the current balance of an account.
func (db *DB) Balance(id string) (int64, error) {
	var bal int64
	err := db.conn.Get(&bal, "SELECT balance FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return bal, err
}

// GetAccount returns the full account row.
func (db *DB) GetAccount(id string) (*Account, error) {
	var a Account
	err := db.conn.Get(&a, "SELECT * FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DebitIfTx atomically decrements balance only if the account can cover the
// amount. Pool accounts (npc_pool) are exempt from the balance check and may
// go negative. Returns ErrInsufficientFunds when the condition fails.
func DebitIfTx(tx *sqlx.Tx, id string, amount int64) error {
	res, err := tx.Exec(
		`UPDATE accounts SET balance = balance - ?
		 WHERE id = ? AND (balance >= ? OR owner_kind = ?)`,
		amount, id, amount, OwnerNPCPool,
	)
	if err != nil {
		return fmt.Errorf("debit %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing account from a failed balance check.
		var exists int
		if err := tx.Get(&exists, "SELECT COUNT(*) FROM accounts WHERE id = ?", id); err != nil {
			return err
		}
		if exists == 0 {
			return ErrAccountNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

// CreditTx increments an account balance.
func CreditTx(tx *sqlx.Tx, id string, amount int64) error {
	res, err := tx.Exec("UPDATE accounts SET balance = balance + ? WHERE id = ?", amount, id)
	if err != nil {
		return fmt.Errorf("credit %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// MoneySupply returns the sum of all non-pool account balances.
func (db *DB) MoneySupply() (int64, error) {
	var total sql.NullInt64
	err := db.conn.Get(&total,
		"SELECT SUM(balance) FROM accounts WHERE owner_kind != ?", OwnerNPCPool)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}
