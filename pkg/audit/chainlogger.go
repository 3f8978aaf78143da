// Package audit keeps a hash-chained journal of ledger operations so the
// sequence of deposits, withdrawals and configuration changes can be verified
// offline for tampering.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Record captures one dispatched ledger operation.
type Record struct {
	Operation     string `json:"operation"`
	Actor         string `json:"actor"`
	Outcome       string `json:"outcome"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// LogEntry is one journal entry, chained to its predecessor by hash.
type LogEntry struct {
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Record       Record `json:"record"`
	Hash         string `json:"hash"`
}

// ChainLogger appends records to a tamper-evident hash chain.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
}

// NewChainLogger creates a journal anchored at a zero hash.
func NewChainLogger() *ChainLogger {
	return &ChainLogger{
		previousHash: strings.Repeat("0", 64),
	}
}

// Append adds a record to the chain and returns the sealed entry.
func (c *ChainLogger) Append(rec Record) *LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &LogEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		PreviousHash: c.previousHash,
		Record:       rec,
	}
	entry.Hash = entryHash(entry)

	c.previousHash = entry.Hash
	return entry
}

// VerifyChain checks that entries form an unbroken, untampered chain.
func VerifyChain(entries []*LogEntry) bool {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false
		}
		if entryHash(entry) != entry.Hash {
			return false
		}
	}
	return true
}

func entryHash(e *LogEntry) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		e.PreviousHash, e.Timestamp,
		e.Record.Operation, e.Record.Actor, e.Record.Outcome, e.Record.CorrelationID)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
