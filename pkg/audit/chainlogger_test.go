package audit

import (
	"testing"
)

func TestChainLogger(t *testing.T) {
	logger := NewChainLogger()

	e1 := logger.Append(Record{Operation: "configure", Actor: "creator", Outcome: "ok"})
	e2 := logger.Append(Record{Operation: "deposit", Actor: "sender", Outcome: "ok"})
	e3 := logger.Append(Record{Operation: "withdraw", Actor: "account1", Outcome: "insufficient_balance"})

	chain := []*LogEntry{e1, e2, e3}
	if !VerifyChain(chain) {
		t.Error("VerifyChain failed for valid chain")
	}

	// Tamper with a record
	originalActor := e2.Record.Actor
	e2.Record.Actor = "mallory"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for tampered record")
	}

	// Restore record, tamper with hash
	e2.Record.Actor = originalActor
	originalHash := e2.Hash
	e2.Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for tampered hash")
	}

	// Restore hash, break a link
	e2.Hash = originalHash
	e3.PreviousHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for broken link")
	}
}

func TestVerifyChainEmpty(t *testing.T) {
	if !VerifyChain(nil) {
		t.Error("empty chain must verify")
	}
}
