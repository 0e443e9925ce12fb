package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ccssmnn/alkalye-sub002/internal/export"
	"github.com/ccssmnn/alkalye-sub002/internal/roles"
	"github.com/ccssmnn/alkalye-sub002/internal/search"
	"github.com/ccssmnn/alkalye-sub002/internal/store"
	"github.com/ccssmnn/alkalye-sub002/internal/util"
)

// maxAssetSize caps uploads at 25 MiB.
const maxAssetSize = 25 << 20

func documentPayload(doc store.Document) map[string]any {
	return map[string]any{
		"id":        doc.ID,
		"title":     doc.Title,
		"spaceId":   doc.SpaceID,
		"groupId":   doc.GroupID,
		"createdBy": doc.CreatedBy,
		"updatedBy": doc.UpdatedBy,
		"createdAt": doc.CreatedAt,
		"updatedAt": doc.UpdatedAt,
	}
}

func (s *Service) CreateDocument(ctx context.Context, session Session, title, spaceID string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}

	groupID := util.NewID("grp")
	documentID := util.NewID("doc")

	if err := s.store.InsertGroup(ctx, store.Group{ID: groupID, Kind: "document", ResourceID: documentID}); err != nil {
		return nil, err
	}
	if err := s.store.UpsertGroupMember(ctx, groupID, session.AccountID, string(roles.RoleAdmin)); err != nil {
		return nil, err
	}

	doc := store.Document{
		ID:        documentID,
		Title:     title,
		GroupID:   groupID,
		CreatedBy: session.AccountID,
		UpdatedBy: session.AccountID,
	}

	if spaceID != "" {
		space, _, err := s.requireSpace(ctx, session, spaceID, roles.ActionWrite)
		if err != nil {
			return nil, err
		}
		doc.SpaceID = &space.ID
		// Space membership cascades to the document through this edge.
		if err := s.store.AddGroupParent(ctx, groupID, space.GroupID); err != nil {
			return nil, err
		}
	}

	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.archive.EnsureDocumentRepo(documentID, "", session.DisplayName); err != nil {
		s.log.Warn("init document archive", zap.String("document", documentID), zap.Error(err))
	}
	s.search.IndexDocument(search.DocumentRecord{ID: documentID, Title: title, SpaceID: derefString(doc.SpaceID)})

	return documentPayload(doc), nil
}

func (s *Service) ListDocuments(ctx context.Context, session Session) ([]map[string]any, error) {
	docs, err := s.store.ListDocumentsForAccount(ctx, session.AccountID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, documentPayload(doc))
	}
	return items, nil
}

func (s *Service) ListDocumentsBySpace(ctx context.Context, session Session, spaceID string) ([]map[string]any, error) {
	if _, _, err := s.requireSpace(ctx, session, spaceID, roles.ActionRead); err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocumentsBySpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, documentPayload(doc))
	}
	return items, nil
}

func (s *Service) GetDocument(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, role, err := s.requireDocument(ctx, session, documentID, roles.ActionRead)
	if err != nil {
		return nil, err
	}
	payload := documentPayload(doc)
	payload["content"] = doc.Content
	payload["role"] = role
	return payload, nil
}

// SaveDocument overwrites title and content outside the transaction log, for
// clients that do not speak changesets. The edit still lands in the log as a
// single whole-document replacement.
func (s *Service) SaveDocument(ctx context.Context, session Session, documentID, title, content string) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionWrite)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = doc.Title
	}
	if content != doc.Content {
		if err := s.appendReplaceTransaction(ctx, session, doc, content); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateDocumentContent(ctx, documentID, title, content, session.AccountID); err != nil {
		return nil, err
	}
	s.search.IndexDocument(search.DocumentRecord{ID: documentID, Title: title, Content: content, SpaceID: derefString(doc.SpaceID)})

	doc.Title = title
	doc.Content = content
	doc.UpdatedBy = session.AccountID
	payload := documentPayload(doc)
	payload["content"] = content
	return payload, nil
}

// MoveDocument reparents the document group: the old space edge is dropped,
// the new space group (if any) becomes a parent. Roles derived from the old
// space disappear with the edge.
func (s *Service) MoveDocument(ctx context.Context, session Session, documentID, spaceID string) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionManage)
	if err != nil {
		return nil, err
	}

	if doc.SpaceID != nil {
		oldSpace, err := s.store.GetSpace(ctx, *doc.SpaceID)
		if err == nil {
			if err := s.store.RemoveGroupParent(ctx, doc.GroupID, oldSpace.GroupID); err != nil {
				return nil, err
			}
		}
	}

	var newSpaceID *string
	if spaceID != "" {
		space, _, err := s.requireSpace(ctx, session, spaceID, roles.ActionWrite)
		if err != nil {
			return nil, err
		}
		if err := s.store.AddGroupParent(ctx, doc.GroupID, space.GroupID); err != nil {
			return nil, err
		}
		newSpaceID = &space.ID
	}

	if err := s.store.MoveDocumentToSpace(ctx, documentID, newSpaceID); err != nil {
		return nil, err
	}
	doc.SpaceID = newSpaceID
	s.search.IndexDocument(search.DocumentRecord{ID: documentID, Title: doc.Title, Content: doc.Content, SpaceID: derefString(newSpaceID)})
	return documentPayload(doc), nil
}

func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	_, _, err := s.requireDocument(ctx, session, documentID, roles.ActionManage)
	if err != nil {
		return err
	}
	if err := s.store.SetDocumentDeleted(ctx, documentID, true); err != nil {
		return err
	}
	s.search.DeleteDocument(documentID)
	return nil
}

func (s *Service) RestoreDocument(ctx context.Context, session Session, documentID string) error {
	// The soft-deleted row is still loadable, so the usual guard applies.
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionManage)
	if err != nil {
		return err
	}
	if err := s.store.SetDocumentDeleted(ctx, documentID, false); err != nil {
		return err
	}
	s.search.IndexDocument(search.DocumentRecord{ID: documentID, Title: doc.Title, Content: doc.Content, SpaceID: derefString(doc.SpaceID)})
	return nil
}

// ── Export ──

// exportStore adapts the service to the export package's data needs.
type exportStore struct {
	service *Service
}

func (e *exportStore) GetDocument(ctx context.Context, id string) (export.DocumentInfo, error) {
	doc, err := e.service.store.GetDocument(ctx, id)
	if err != nil {
		return export.DocumentInfo{}, err
	}
	info := export.DocumentInfo{
		ID:        doc.ID,
		Title:     doc.Title,
		UpdatedBy: doc.UpdatedBy,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.SpaceID != nil {
		info.SpaceID = *doc.SpaceID
	}
	return info, nil
}

func (e *exportStore) GetSpace(ctx context.Context, id string) (export.SpaceInfo, error) {
	space, err := e.service.store.GetSpace(ctx, id)
	if err != nil {
		return export.SpaceInfo{}, err
	}
	return export.SpaceInfo{ID: space.ID, Name: space.Name}, nil
}

func (e *exportStore) GetDocumentContent(ctx context.Context, documentID, version string) (string, error) {
	if version == "" || version == "latest" {
		doc, err := e.service.store.GetDocument(ctx, documentID)
		if err != nil {
			return "", err
		}
		return doc.Content, nil
	}
	return e.service.archive.ContentAtHash(documentID, version)
}

func (s *Service) ExportDocument(ctx context.Context, session Session, req export.Request) (*export.Result, error) {
	if _, _, err := s.requireDocument(ctx, session, req.DocumentID, roles.ActionRead); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, req)
}

// ── Assets ──

func (s *Service) UploadAsset(ctx context.Context, session Session, documentID, name, contentType string, size int64, r io.Reader) (map[string]any, error) {
	if _, _, err := s.requireDocument(ctx, session, documentID, roles.ActionWrite); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation("asset name is required")
	}
	if size <= 0 || size > maxAssetSize {
		return nil, validation(fmt.Sprintf("asset size must be between 1 byte and %d bytes", maxAssetSize))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	asset := store.Asset{
		ID:          util.NewID("ast"),
		DocumentID:  documentID,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  session.AccountID,
	}
	asset.ObjectKey = fmt.Sprintf("%s/%s/%s", documentID, asset.ID, name)

	if err := s.assets.Upload(ctx, asset.ObjectKey, r, size, contentType); err != nil {
		return nil, fmt.Errorf("upload asset: %w", err)
	}
	if err := s.store.InsertAsset(ctx, asset); err != nil {
		return nil, err
	}

	return map[string]any{
		"id":          asset.ID,
		"name":        asset.Name,
		"contentType": asset.ContentType,
		"size":        asset.Size,
	}, nil
}

func (s *Service) ListAssets(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	if _, _, err := s.requireDocument(ctx, session, documentID, roles.ActionRead); err != nil {
		return nil, err
	}
	assets, err := s.store.ListAssets(ctx, documentID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(assets))
	for _, asset := range assets {
		items = append(items, map[string]any{
			"id":          asset.ID,
			"name":        asset.Name,
			"contentType": asset.ContentType,
			"size":        asset.Size,
			"uploadedBy":  asset.UploadedBy,
			"createdAt":   asset.CreatedAt,
		})
	}
	return map[string]any{"assets": items}, nil
}

func (s *Service) DownloadAsset(ctx context.Context, session Session, documentID, assetID string) (store.Asset, io.ReadCloser, error) {
	if _, _, err := s.requireDocument(ctx, session, documentID, roles.ActionRead); err != nil {
		return store.Asset{}, nil, err
	}
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Asset{}, nil, notFound("asset not found")
		}
		return store.Asset{}, nil, err
	}
	if asset.DocumentID != documentID {
		return store.Asset{}, nil, notFound("asset not found")
	}
	reader, err := s.assets.Download(ctx, asset.ObjectKey)
	if err != nil {
		return store.Asset{}, nil, fmt.Errorf("download asset: %w", err)
	}
	return asset, reader, nil
}

func (s *Service) DeleteAsset(ctx context.Context, session Session, documentID, assetID string) error {
	if _, _, err := s.requireDocument(ctx, session, documentID, roles.ActionWrite); err != nil {
		return err
	}
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		if store.IsNotFound(err) {
			return notFound("asset not found")
		}
		return err
	}
	if asset.DocumentID != documentID {
		return notFound("asset not found")
	}
	if err := s.assets.Delete(ctx, asset.ObjectKey); err != nil {
		s.log.Warn("delete asset object", zap.String("key", asset.ObjectKey), zap.Error(err))
	}
	return s.store.DeleteAsset(ctx, assetID)
}

// ── Search ──

func (s *Service) Search(ctx context.Context, session Session, q search.Query) (map[string]any, error) {
	resp := s.search.Search(q)

	// The index has no notion of per-account access; filter hits down to
	// what the caller can actually open.
	readableDocs := make(map[string]bool)
	if docs, err := s.store.ListDocumentsForAccount(ctx, session.AccountID); err == nil {
		for _, doc := range docs {
			readableDocs[doc.ID] = true
		}
	}
	readableSpaces := make(map[string]bool)
	if spaces, err := s.store.ListSpacesForAccount(ctx, session.AccountID); err == nil {
		for _, space := range spaces {
			readableSpaces[space.ID] = true
		}
	}

	results := make([]search.Result, 0, len(resp.Results))
	for _, result := range resp.Results {
		switch result.Type {
		case search.ResultDocument:
			if readableDocs[result.ID] {
				results = append(results, result)
			}
		case search.ResultSpace:
			if readableSpaces[result.ID] {
				results = append(results, result)
			}
		}
	}

	return map[string]any{
		"results": results,
		"total":   len(results),
	}, nil
}

// ── Named versions and snapshots ──

func (s *Service) SnapshotDocument(ctx context.Context, session Session, documentID, message string) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionWrite)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		message = "Snapshot"
	}
	commit, err := s.archive.CommitSnapshot(documentID, doc.Content, session.DisplayName, message)
	if err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return map[string]any{
		"hash":      commit.Hash,
		"message":   commit.Message,
		"author":    commit.Author,
		"createdAt": commit.CreatedAt,
	}, nil
}

func (s *Service) ListVersions(ctx context.Context, session Session, documentID string, limit int) (map[string]any, error) {
	if _, _, err := s.requireDocument(ctx, session, documentID, roles.ActionRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	commits, err := s.archive.History(documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive history: %w", err)
	}
	named, err := s.archive.ListNamedVersions(documentID)
	if err != nil {
		return nil, fmt.Errorf("list named versions: %w", err)
	}

	namedByHash := make(map[string]string, len(named))
	for _, version := range named {
		namedByHash[version.Hash] = version.Name
	}

	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		item := map[string]any{
			"hash":      commit.Hash,
			"message":   commit.Message,
			"author":    commit.Author,
			"createdAt": commit.CreatedAt,
		}
		if name, ok := namedByHash[commit.Hash]; ok {
			item["name"] = name
		}
		items = append(items, item)
	}
	return map[string]any{"versions": items}, nil
}

func (s *Service) CreateNamedVersion(ctx context.Context, session Session, documentID, hash, name string) (map[string]any, error) {
	if _, _, err := s.requireDocument(ctx, session, documentID, roles.ActionWrite); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation("version name is required")
	}
	if err := s.archive.CreateNamedVersion(documentID, hash, name); err != nil {
		return nil, fmt.Errorf("create named version: %w", err)
	}
	return map[string]any{"name": name, "hash": hash}, nil
}

func (s *Service) VersionContent(ctx context.Context, session Session, documentID, hash string) (map[string]any, error) {
	if _, _, err := s.requireDocument(ctx, session, documentID, roles.ActionRead); err != nil {
		return nil, err
	}
	content, err := s.archive.ContentAtHash(documentID, hash)
	if err != nil {
		return nil, notFound("version not found")
	}
	return map[string]any{"hash": hash, "content": content}, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
