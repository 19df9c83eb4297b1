package store

import (
	"errors"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.EnsureSystemAccounts(); err != nil {
		t.Fatalf("ensure system accounts: %v", err)
	}
	return db
}

func TestDebitIfRefusesOverdraft(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateAccount("acct-1", OwnerAgent, "agent-1"); err != nil {
		t.Fatalf("create account: %v", err)
	}

	tx, err := db.Handle().Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := CreditTx(tx, "acct-1", 50); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := DebitIfTx(tx, "acct-1", 60); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := DebitIfTx(tx, "acct-1", 50); err != nil {
		t.Fatalf("full debit should pass: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	bal, err := db.Balance("acct-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 0 {
		t.Errorf("balance = %d, want 0", bal)
	}
}

func TestNPCPoolMayGoNegative(t *testing.T) {
	db := openTestDB(t)

	tx, err := db.Handle().Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := DebitIfTx(tx, AccountNPCPool, 1000); err != nil {
		t.Fatalf("pool debit should never fail the balance check: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	bal, err := db.Balance(AccountNPCPool)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != -1000 {
		t.Errorf("npc_pool balance = %d, want -1000", bal)
	}
}

func TestDebitUnknownAccount(t *testing.T) {
	db := openTestDB(t)

	tx, err := db.Handle().Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	if err := DebitIfTx(tx, "nope", 1); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestMoneySupplyExcludesPool(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateAccount("acct-1", OwnerAgent, "agent-1"); err != nil {
		t.Fatalf("create account: %v", err)
	}

	tx, _ := db.Handle().Beginx()
	if err := DebitIfTx(tx, AccountNPCPool, 75); err != nil {
		t.Fatalf("mint debit: %v", err)
	}
	if err := CreditTx(tx, "acct-1", 75); err != nil {
		t.Fatalf("mint credit: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	supply, err := db.MoneySupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply != 75 {
		t.Errorf("money supply = %d, want 75", supply)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if v, err := db.GetMeta("missing"); err != nil || v != "" {
		t.Fatalf("unset key: got (%q, %v), want empty and nil", v, err)
	}
	if err := db.SaveMeta("last_tick", "42"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveMeta("last_tick", "43"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, err := db.GetMeta("last_tick")
	if err != nil || v != "43" {
		t.Fatalf("get: got (%q, %v), want 43", v, err)
	}
}
