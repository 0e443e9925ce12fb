package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ccssmnn/alkalye-sub002/internal/edits"
	"github.com/ccssmnn/alkalye-sub002/internal/roles"
	"github.com/ccssmnn/alkalye-sub002/internal/search"
	"github.com/ccssmnn/alkalye-sub002/internal/store"
	"github.com/ccssmnn/alkalye-sub002/internal/timemachine"
)

func (s *Service) machine(documentID string) *timemachine.TimeMachine {
	s.machineMu.Lock()
	defer s.machineMu.Unlock()
	m, ok := s.machines[documentID]
	if !ok {
		m = timemachine.New("")
		s.machines[documentID] = m
	}
	return m
}

// refreshMachine feeds the document's transaction log into its time machine.
// The machine skips the rebuild when the transaction count is unchanged.
func (s *Service) refreshMachine(ctx context.Context, doc store.Document) (*timemachine.TimeMachine, error) {
	rows, err := s.store.ListTransactions(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	txns := make([]timemachine.Transaction, 0, len(rows))
	for _, row := range rows {
		var change edits.Changeset
		if err := json.Unmarshal(row.Change, &change); err != nil {
			return nil, fmt.Errorf("decode transaction %d: %w", row.Seq, err)
		}
		txns = append(txns, timemachine.Transaction{
			MadeAt:    row.MadeAt,
			AccountID: row.AccountID,
			Change:    change,
		})
	}

	m := s.machine(doc.ID)
	m.Update(txns, doc.Content)
	return m, nil
}

// History returns the deduplicated edit checkpoints plus their calendar-day
// grouping, in the requested timezone.
func (s *Service) History(ctx context.Context, session Session, documentID, tzName string) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionRead)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if tzName != "" {
		parsed, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, validation(fmt.Sprintf("unknown timezone %q", tzName))
		}
		loc = parsed
	}

	m, err := s.refreshMachine(ctx, doc)
	if err != nil {
		return nil, err
	}

	items := m.Edits()
	days := timemachine.GroupByDay(items, loc)
	return map[string]any{
		"edits":       items,
		"days":        days,
		"latestIndex": m.LatestIndex(),
	}, nil
}

// HistoryContentAt reconstructs the document content at one edit checkpoint.
func (s *Service) HistoryContentAt(ctx context.Context, session Session, documentID string, index int) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionRead)
	if err != nil {
		return nil, err
	}

	m, err := s.refreshMachine(ctx, doc)
	if err != nil {
		return nil, err
	}
	content, err := m.ContentAt(index)
	if err != nil {
		return nil, validation(err.Error())
	}
	return map[string]any{
		"index":   index,
		"content": content,
	}, nil
}

// RestoreToEdit snapshots the current content, then makes the document equal
// to the state it had at the checkpoint. The restore itself is a regular
// logged transaction, so it shows up in history and can be undone like any
// other edit.
func (s *Service) RestoreToEdit(ctx context.Context, session Session, documentID string, index int) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionWrite)
	if err != nil {
		return nil, err
	}

	m, err := s.refreshMachine(ctx, doc)
	if err != nil {
		return nil, err
	}
	content, err := m.ContentAt(index)
	if err != nil {
		return nil, validation(err.Error())
	}
	if content == doc.Content {
		return map[string]any{"index": index, "content": content, "changed": false}, nil
	}

	if _, err := s.archive.CommitSnapshot(documentID, doc.Content, session.DisplayName, "Snapshot before restore"); err != nil {
		s.log.Warn("snapshot before restore", zap.String("document", documentID), zap.Error(err))
	}

	if err := s.appendReplaceTransaction(ctx, session, doc, content); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDocumentContent(ctx, documentID, doc.Title, content, session.AccountID); err != nil {
		return nil, err
	}
	s.search.IndexDocument(search.DocumentRecord{ID: documentID, Title: doc.Title, Content: content, SpaceID: derefString(doc.SpaceID)})

	return map[string]any{"index": index, "content": content, "changed": true}, nil
}

// AppendEdit applies a changeset from a client to the stored content and
// appends it to the transaction log.
func (s *Service) AppendEdit(ctx context.Context, session Session, documentID string, change edits.Changeset) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionWrite)
	if err != nil {
		return nil, err
	}
	if change.IsNoop() {
		return map[string]any{"content": doc.Content, "changed": false}, nil
	}

	next, err := change.Apply(doc.Content)
	if err != nil {
		return nil, validation(fmt.Sprintf("changeset does not fit document: %v", err))
	}

	if err := s.appendTransaction(ctx, session, doc.ID, change); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDocumentContent(ctx, documentID, doc.Title, next, session.AccountID); err != nil {
		return nil, err
	}
	s.search.IndexDocument(search.DocumentRecord{ID: documentID, Title: doc.Title, Content: next, SpaceID: derefString(doc.SpaceID)})

	return map[string]any{"content": next, "changed": true}, nil
}

// ListEdits is History without the day grouping, for clients that build their
// own buckets.
func (s *Service) ListEdits(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionRead)
	if err != nil {
		return nil, err
	}
	m, err := s.refreshMachine(ctx, doc)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"edits":       m.Edits(),
		"latestIndex": m.LatestIndex(),
	}, nil
}

func (s *Service) appendReplaceTransaction(ctx context.Context, session Session, doc store.Document, next string) error {
	return s.appendTransaction(ctx, session, doc.ID, edits.Replace(0, len(doc.Content), next))
}

func (s *Service) appendTransaction(ctx context.Context, session Session, documentID string, change edits.Changeset) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode changeset: %w", err)
	}
	return s.store.AppendTransaction(ctx, store.Transaction{
		DocumentID: documentID,
		MadeAt:     time.Now(),
		AccountID:  session.AccountID,
		Change:     payload,
	})
}
