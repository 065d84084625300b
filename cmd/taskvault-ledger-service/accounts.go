// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sync"

	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/settlement"
)

// Accounts is the in-process settlement backend: a map of external
// actor balances plus the vault's custodied total. It implements
// settlement.Transferor for deployments without a real payment
// backend; balances live only for the process lifetime and are
// funded through the account-credit action.
type Accounts struct {
	mu       sync.Mutex
	balances map[identity.Actor]int64
	vault    int64
}

// NewAccounts creates an empty account set.
func NewAccounts() *Accounts {
	return &Accounts{balances: make(map[identity.Actor]int64)}
}

// Credit adds amount to the actor's external balance.
func (a *Accounts) Credit(actor identity.Actor, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[actor] += amount
	return nil
}

// Balance returns the actor's external balance.
func (a *Accounts) Balance(actor identity.Actor) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[actor]
}

// VaultBalance returns the custodied total.
func (a *Accounts) VaultBalance() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vault
}

// Collect withdraws amount from the actor's balance into the vault.
func (a *Accounts) Collect(from identity.Actor, amount int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balances[from] < amount {
		return fmt.Errorf("account %s holds %d, needs %d", from, a.balances[from], amount)
	}
	a.balances[from] -= amount
	a.vault += amount
	return nil
}

// Disburse pays the credits out of the vault. All legs apply or none.
func (a *Accounts) Disburse(credits []settlement.Credit) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total int64
	for _, credit := range credits {
		total += credit.Amount
	}
	if a.vault < total {
		// The engine drains escrow before disbursing, so the vault
		// covers every settlement it initiated. Reaching this means
		// the vault counter diverged from the ledger.
		return fmt.Errorf("vault holds %d, disbursement needs %d", a.vault, total)
	}

	a.vault -= total
	for _, credit := range credits {
		a.balances[credit.To] += credit.Amount
	}
	return nil
}
