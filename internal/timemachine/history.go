// Package timemachine reconstructs a document's edit history from its
// transaction log: deduplicated, timestamp-ordered checkpoints with memoized
// content reconstruction at any point in the sequence.
package timemachine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ccssmnn/alkalye-sub002/internal/edits"
)

// Transaction is one replayable entry of a document's log.
type Transaction struct {
	MadeAt    time.Time
	AccountID string
	Change    edits.Changeset
}

// Edit is a checkpoint in the deduplicated history. Index positions it in
// the ascending sequence returned by Edits.
type Edit struct {
	Index     int       `json:"index"`
	MadeAt    time.Time `json:"madeAt"`
	AccountID string    `json:"accountId"`
}

// TimeMachine replays a transaction log into edit checkpoints. Reconstruction
// results are memoized per checkpoint; the memo is keyed by the transaction
// count, so it drops automatically when new edits arrive.
type TimeMachine struct {
	mu       sync.Mutex
	base     string
	current  string
	txns     []Transaction
	edits    []Edit
	memo     map[int]string
	txnCount int
}

// New creates a time machine over the content the document had before its
// first logged transaction (empty for documents created through the app).
func New(base string) *TimeMachine {
	return &TimeMachine{base: base, memo: make(map[int]string)}
}

// Update replaces the transaction log and the live document content. If the
// transaction count changed, checkpoints are rebuilt and the memo is dropped.
func (m *TimeMachine) Update(txns []Transaction, current string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = current
	if len(txns) == m.txnCount {
		return
	}

	m.txns = make([]Transaction, len(txns))
	copy(m.txns, txns)
	sort.SliceStable(m.txns, func(i, j int) bool {
		return m.txns[i].MadeAt.Before(m.txns[j].MadeAt)
	})

	// One checkpoint per distinct timestamp; the last writer wins the
	// attribution when several transactions share one.
	m.edits = m.edits[:0]
	for _, txn := range m.txns {
		if n := len(m.edits); n > 0 && m.edits[n-1].MadeAt.Equal(txn.MadeAt) {
			m.edits[n-1].AccountID = txn.AccountID
			continue
		}
		m.edits = append(m.edits, Edit{Index: len(m.edits), MadeAt: txn.MadeAt, AccountID: txn.AccountID})
	}

	m.memo = make(map[int]string)
	m.txnCount = len(txns)
}

// Edits returns the deduplicated, ascending checkpoint sequence.
func (m *TimeMachine) Edits() []Edit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Edit, len(m.edits))
	copy(out, m.edits)
	return out
}

// LatestIndex returns the index of the newest checkpoint, or -1 for an empty
// history.
func (m *TimeMachine) LatestIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edits) - 1
}

// ContentAt reconstructs the document content at checkpoint index. The newest
// checkpoint reads the live content directly; earlier ones replay the log up
// to the checkpoint's timestamp and memoize the result.
func (m *TimeMachine) ContentAt(index int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.edits) {
		return "", fmt.Errorf("edit index %d out of range [0,%d)", index, len(m.edits))
	}
	if index == len(m.edits)-1 {
		return m.current, nil
	}
	if content, ok := m.memo[index]; ok {
		return content, nil
	}

	cutoff := m.edits[index].MadeAt
	content := m.base
	for _, txn := range m.txns {
		if txn.MadeAt.After(cutoff) {
			break
		}
		next, err := txn.Change.Apply(content)
		if err != nil {
			return "", fmt.Errorf("replay transaction at %s: %w", txn.MadeAt.Format(time.RFC3339Nano), err)
		}
		content = next
	}

	m.memo[index] = content
	return content, nil
}
