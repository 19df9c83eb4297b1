package ledger

import (
	"errors"
	"testing"

	"github.com/talgya/civitas/internal/store"
)

func setupLedger(t *testing.T) (*Engine, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.EnsureSystemAccounts(); err != nil {
		t.Fatalf("ensure system accounts: %v", err)
	}
	return New(db), db
}

func mustAccount(t *testing.T, db *store.DB, id string) {
	t.Helper()
	if err := db.CreateAccount(id, store.OwnerAgent, id); err != nil {
		t.Fatalf("create account %s: %v", id, err)
	}
}

func TestTransferMovesMoney(t *testing.T) {
	led, db := setupLedger(t)
	mustAccount(t, db, "alice")
	mustAccount(t, db, "bob")

	if _, err := led.Mint("alice", 100, TxGrant, 0, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	entry, err := led.Transfer("alice", "bob", 30, TxPurchase, 1, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if entry.ID == 0 {
		t.Error("entry should have a row ID")
	}

	aliceBal, _ := led.Balance("alice")
	bobBal, _ := led.Balance("bob")
	if aliceBal != 70 || bobBal != 30 {
		t.Errorf("balances = (%d, %d), want (70, 30)", aliceBal, bobBal)
	}
}

func TestTransferInsufficientFundsAppliesNothing(t *testing.T) {
	led, db := setupLedger(t)
	mustAccount(t, db, "alice")
	mustAccount(t, db, "bob")

	if _, err := led.Mint("alice", 10, TxGrant, 0, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err := led.Transfer("alice", "bob", 11, TxPurchase, 1, nil)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	aliceBal, _ := led.Balance("alice")
	bobBal, _ := led.Balance("bob")
	if aliceBal != 10 || bobBal != 0 {
		t.Errorf("failed transfer mutated balances: (%d, %d)", aliceBal, bobBal)
	}

	entries, err := led.EntriesForTick(1)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("failed transfer recorded %d entries, want 0", len(entries))
	}
}

func TestTransferRejectsBadArguments(t *testing.T) {
	led, db := setupLedger(t)
	mustAccount(t, db, "alice")

	if _, err := led.Transfer("alice", "alice", 5, TxPurchase, 1, nil); err == nil {
		t.Error("self-transfer should be rejected")
	}
	if _, err := led.Transfer("alice", store.AccountTreasury, 0, TxPurchase, 1, nil); err == nil {
		t.Error("zero amount should be rejected")
	}
	if _, err := led.Transfer("alice", store.AccountTreasury, -5, TxPurchase, 1, nil); err == nil {
		t.Error("negative amount should be rejected")
	}
}

func TestMintAndSinkConservation(t *testing.T) {
	led, db := setupLedger(t)
	mustAccount(t, db, "alice")

	if _, err := led.Mint("alice", 100, TxGrant, 0, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := led.Sink("alice", 40, TxLiving, 1, nil); err != nil {
		t.Fatalf("sink: %v", err)
	}

	supply, err := led.MoneySupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply != 60 {
		t.Errorf("money supply = %d, want minted minus sunk = 60", supply)
	}

	poolBal, _ := led.Balance(store.AccountNPCPool)
	if poolBal != -60 {
		t.Errorf("npc_pool = %d, want -60 (mirror of supply)", poolBal)
	}
}

func TestVerifyChain(t *testing.T) {
	led, db := setupLedger(t)
	mustAccount(t, db, "alice")
	mustAccount(t, db, "bob")

	led.Mint("alice", 100, TxGrant, 0, nil)
	led.Transfer("alice", "bob", 25, TxTheft, 1, map[string]string{"agent": "bob", "victim": "alice"})
	led.Sink("bob", 5, TxLiving, 2, nil)

	brokenID, err := led.VerifyChain()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if brokenID != -1 {
		t.Fatalf("fresh chain reported broken at %d", brokenID)
	}

	// Tamper with a recorded amount; the entry hash no longer matches.
	if _, err := db.Handle().Exec("UPDATE ledger_entries SET amount = 9999 WHERE id = 2"); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	brokenID, err = led.VerifyChain()
	if err != nil {
		t.Fatalf("verify after tamper: %v", err)
	}
	if brokenID != 2 {
		t.Errorf("broken at %d, want 2", brokenID)
	}
}

func TestEntriesForTick(t *testing.T) {
	led, db := setupLedger(t)
	mustAccount(t, db, "alice")

	led.Mint("alice", 100, TxGrant, 0, nil)
	led.Sink("alice", 10, TxLiving, 5, nil)
	led.Sink("alice", 10, TxUpkeep, 5, nil)

	entries, err := led.EntriesForTick(5)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries for tick 5, want 2", len(entries))
	}
	if entries[0].PrevHash == "" || entries[1].PrevHash != entries[0].Hash {
		t.Error("entries within a tick should chain in order")
	}
}
