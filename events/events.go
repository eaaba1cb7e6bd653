// Package events reports user-facing vault events to subscribers. Reporting
// is a no-op until a reporter is initialized, and droppy after that: a slow
// subscriber never blocks the vault.
package events

import (
	"sync"
	"time"

	"github.com/vestvault/go-vestvault/common/types"
)

type EventType string

const (
	TypeVaultCreated = "Vault Created"
	TypeConfigured   = "Schedule Configured"
	TypeDeposit      = "Deposit"
	TypeWithdraw     = "Withdraw"
)

// UserEvent wraps event details with the type tag and emission time.
type UserEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Help      string    `json:"help"`
	Type      EventType `json:"type"`
	Details   any       `json:"details"`
}

type EventVaultCreated struct {
	Vault       types.Address `json:"vault"`
	Beneficiary types.Address `json:"beneficiary"`
}

func EmitVaultCreated(vault, beneficiary types.Address) {
	const help = "Vault was created. The administrator may configure a vesting schedule once."
	emitUserEvent(TypeVaultCreated, help, EventVaultCreated{Vault: vault, Beneficiary: beneficiary})
}

type EventConfigured struct {
	Vault  types.Address `json:"vault"`
	Start  time.Time     `json:"start"`
	Unlock time.Time     `json:"unlock"`
}

func EmitConfigured(vault types.Address, start, unlock time.Time) {
	const help = "Vesting schedule was locked. It cannot be changed for the vault's lifetime."
	emitUserEvent(TypeConfigured, help, EventConfigured{Vault: vault, Start: start, Unlock: unlock})
}

type EventDeposit struct {
	Vault  types.Address `json:"vault"`
	Asset  types.AssetID `json:"asset"`
	Amount uint64        `json:"amount"`
}

func EmitDeposit(vault types.Address, asset types.AssetID, amount uint64) {
	const help = "Funds were deposited. Deposits made after the schedule started inflate the vestable base."
	emitUserEvent(TypeDeposit, help, EventDeposit{Vault: vault, Asset: asset, Amount: amount})
}

type EventWithdraw struct {
	Vault types.Address `json:"vault"`
	Asset types.AssetID `json:"asset"`
	Delta uint64        `json:"delta"`
}

// EmitWithdraw reports a successful withdrawal. Emitted exactly once per
// withdrawal, after the transfer is committed.
func EmitWithdraw(vault types.Address, asset types.AssetID, delta uint64) {
	const help = "Beneficiary withdrew the vested delta."
	emitUserEvent(TypeWithdraw, help, EventWithdraw{Vault: vault, Asset: asset, Delta: delta})
}

var (
	mu       sync.RWMutex
	reporter *eventReporter
)

type eventReporter struct {
	channels []chan UserEvent
}

// InitializeReporter creates the event reporter singleton. Emits before
// initialization are dropped.
func InitializeReporter() {
	mu.Lock()
	defer mu.Unlock()
	if reporter == nil {
		reporter = &eventReporter{}
	}
}

// Subscribe returns a channel that receives all emitted events. The channel
// is buffered with bufsize; events are dropped if the buffer is full.
func Subscribe(bufsize int) chan UserEvent {
	mu.Lock()
	defer mu.Unlock()
	if reporter == nil {
		return nil
	}
	ch := make(chan UserEvent, bufsize)
	reporter.channels = append(reporter.channels, ch)
	return ch
}

// CloseEventReporter shuts down the reporter and closes all subscriptions.
func CloseEventReporter() {
	mu.Lock()
	defer mu.Unlock()
	if reporter != nil {
		for _, ch := range reporter.channels {
			close(ch)
		}
		reporter = nil
	}
}

func emitUserEvent(typ EventType, help string, details any) {
	mu.RLock()
	defer mu.RUnlock()
	if reporter == nil {
		return
	}
	event := UserEvent{
		Timestamp: time.Now(),
		Type:      typ,
		Help:      help,
		Details:   details,
	}
	for _, ch := range reporter.channels {
		select {
		case ch <- event:
		default:
		}
	}
}
