// Package ledger provides atomic double-entry money movement between
// accounts. Every transfer is a single transaction: a conditional
// check-and-decrement debit, a credit, and an immutable hash-chained entry.
// No balance in the system is ever mutated outside this package.
package ledger

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/talgya/civitas/internal/store"
)

// Transaction type tags recorded on entries.
const (
	TxGrant      = "grant"       // mint: npc_pool -> agent on registration
	TxSalary     = "salary"
	TxTax        = "tax"
	TxUpkeep     = "upkeep"      // sink
	TxLiving     = "living"      // sink
	TxTheft      = "theft"
	TxFine       = "fine"
	TxDemand     = "demand_alloc"
	TxNPCRevenue = "npc_revenue"
	TxImportFee  = "import_fee" // sink
	TxOwnerDraw  = "owner_draw"
	TxLand       = "land"
	TxBuild      = "build"
	TxUpgrade    = "upgrade"
	TxPurchase   = "purchase" // eat/relax spends
)

// ErrInsufficientFunds mirrors the store sentinel for callers that only
// import this package.
var ErrInsufficientFunds = store.ErrInsufficientFunds

// Entry is an immutable record of one completed transfer.
type Entry struct {
	ID       int64             `json:"id"`
	Debit    string            `json:"debit_account"`
	Credit   string            `json:"credit_account"`
	Amount   int64             `json:"amount"`
	Type     string            `json:"tx_type"`
	Tick     uint64            `json:"tick"`
	Meta     map[string]string `json:"meta,omitempty"`
	PrevHash string            `json:"prev_hash"`
	Hash     string            `json:"hash"`
}

// Engine moves money. One engine per city; the mutex serializes the hash
// chain tail, not the balance checks (those are conditional SQL updates).
type Engine struct {
	db *store.DB
	mu sync.Mutex
}

// New creates a ledger engine over the given store.
func New(db *store.DB) *Engine {
	return &Engine{db: db}
}

// Transfer atomically moves amount from the debit account to the credit
// account. The debit is refused (ErrInsufficientFunds) rather than allowed to
// take a non-pool account negative; nothing is partially applied.
func (e *Engine) Transfer(debit, credit string, amount int64, txType string, tick uint64, meta map[string]string) (*Entry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	if debit == credit {
		return nil, errors.New("transfer debit and credit accounts are identical")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.Handle().Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := store.DebitIfTx(tx, debit, amount); err != nil {
		return nil, err
	}
	if err := store.CreditTx(tx, credit, amount); err != nil {
		return nil, err
	}

	var prevHash string
	err = tx.Get(&prevHash, "SELECT hash FROM ledger_entries ORDER BY id DESC LIMIT 1")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if prevHash == "" {
		prevHash = "genesis"
	}

	entry := &Entry{
		Debit:    debit,
		Credit:   credit,
		Amount:   amount,
		Type:     txType,
		Tick:     tick,
		Meta:     meta,
		PrevHash: prevHash,
	}
	entry.Hash = entryHash(entry)

	metaJSON := []byte("{}")
	if meta != nil {
		metaJSON, _ = json.Marshal(meta)
	}
	res, err := tx.Exec(
		`INSERT INTO ledger_entries
		 (debit_account, credit_account, amount, tx_type, tick, meta_json, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Debit, entry.Credit, entry.Amount, entry.Type, entry.Tick,
		string(metaJSON), entry.PrevHash, entry.Hash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	entry.ID, _ = res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Mint creates money: a transfer whose debit leg is the NPC pool.
func (e *Engine) Mint(credit string, amount int64, txType string, tick uint64, meta map[string]string) (*Entry, error) {
	return e.Transfer(store.AccountNPCPool, credit, amount, txType, tick, meta)
}

// Sink destroys money: a transfer whose credit leg is the NPC pool.
func (e *Engine) Sink(debit string, amount int64, txType string, tick uint64, meta map[string]string) (*Entry, error) {
	return e.Transfer(debit, store.AccountNPCPool, amount, txType, tick, meta)
}

// entryHash chains an entry to its predecessor. Meta keys are hashed in
// sorted order so recomputation is deterministic.
func entryHash(en *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%s|%d", en.PrevHash, en.Debit, en.Credit, en.Amount, en.Type, en.Tick)
	keys := make([]string, 0, len(en.Meta))
	for k := range en.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%s", k, en.Meta[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MoneySupply returns the sum of all non-pool balances.
func (e *Engine) MoneySupply() (int64, error) {
	return e.db.MoneySupply()
}

// Balance returns an account's current balance.
func (e *Engine) Balance(id string) (int64, error) {
	return e.db.Balance(id)
}

// VerifyChain walks the ledger and reports the first break in the hash
// chain, or -1 when the chain is intact.
func (e *Engine) VerifyChain() (int64, error) {
	rows, err := e.db.Handle().Queryx(
		`SELECT id, debit_account, credit_account, amount, tx_type, tick, meta_json, prev_hash, hash
		 FROM ledger_entries ORDER BY id ASC`)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	prev := "genesis"
	for rows.Next() {
		var en Entry
		var metaJSON string
		if err := rows.Scan(&en.ID, &en.Debit, &en.Credit, &en.Amount, &en.Type,
			&en.Tick, &metaJSON, &en.PrevHash, &en.Hash); err != nil {
			return -1, err
		}
		if metaJSON != "" && metaJSON != "{}" {
			_ = json.Unmarshal([]byte(metaJSON), &en.Meta)
		}
		if en.PrevHash != prev || entryHash(&en) != en.Hash {
			return en.ID, nil
		}
		prev = en.Hash
	}
	return -1, rows.Err()
}

// EntriesForTick returns all entries recorded during one tick.
func (e *Engine) EntriesForTick(tick uint64) ([]Entry, error) {
	rows, err := e.db.Handle().Queryx(
		`SELECT id, debit_account, credit_account, amount, tx_type, tick, meta_json, prev_hash, hash
		 FROM ledger_entries WHERE tick = ? ORDER BY id ASC`, tick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var en Entry
		var metaJSON string
		if err := rows.Scan(&en.ID, &en.Debit, &en.Credit, &en.Amount, &en.Type,
			&en.Tick, &metaJSON, &en.PrevHash, &en.Hash); err != nil {
			return nil, err
		}
		if metaJSON != "" && metaJSON != "{}" {
			_ = json.Unmarshal([]byte(metaJSON), &en.Meta)
		}
		out = append(out, en)
	}
	return out, rows.Err()
}
