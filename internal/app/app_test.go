package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ccssmnn/alkalye-sub002/internal/authpw"
	"github.com/ccssmnn/alkalye-sub002/internal/config"
	"github.com/ccssmnn/alkalye-sub002/internal/permissions"
	"github.com/ccssmnn/alkalye-sub002/internal/realtime"
	"github.com/ccssmnn/alkalye-sub002/internal/roles"
	"github.com/ccssmnn/alkalye-sub002/internal/search"
	"github.com/ccssmnn/alkalye-sub002/internal/store"
	"github.com/ccssmnn/alkalye-sub002/internal/util"
)

// memStore backs the whole service in memory for HTTP-level tests. It also
// satisfies the authpw account store and the session store.
type memStore struct {
	mu        sync.Mutex
	accounts  map[string]store.Account
	emailIdx  map[string]string
	resets    map[string]string
	resetUsed map[string]bool
	groups    map[string]store.Group
	members   map[string]map[string]string
	parents   map[string]map[string]bool
	spaces    map[string]store.Space
	documents map[string]store.Document
	txns      map[string][]store.Transaction
	invites   map[string]store.InviteLink
	assets    map[string]store.Asset

	refresh    map[string]refreshRecord
	revokedJTI map[string]bool
}

type refreshRecord struct {
	account   store.Account
	expiresAt time.Time
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   make(map[string]store.Account),
		emailIdx:   make(map[string]string),
		resets:     make(map[string]string),
		resetUsed:  make(map[string]bool),
		groups:     make(map[string]store.Group),
		members:    make(map[string]map[string]string),
		parents:    make(map[string]map[string]bool),
		spaces:     make(map[string]store.Space),
		documents:  make(map[string]store.Document),
		txns:       make(map[string][]store.Transaction),
		invites:    make(map[string]store.InviteLink),
		assets:     make(map[string]store.Asset),
		refresh:    make(map[string]refreshRecord),
		revokedJTI: make(map[string]bool),
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

// authpw.AccountStore

func (m *memStore) GetAccountByEmail(_ context.Context, email string) (store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emailIdx[email]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return m.accounts[id], nil
}

func (m *memStore) GetAccountByID(_ context.Context, id string) (store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (m *memStore) CreateAccount(_ context.Context, account store.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	m.emailIdx[account.Email] = account.ID
	return nil
}

func (m *memStore) UpdateVerificationToken(_ context.Context, accountID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.accounts[accountID]
	account.VerificationToken = token
	account.VerificationExpiresAt = &expiresAt
	m.accounts[accountID] = account
	return nil
}

func (m *memStore) VerifyAccountEmail(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, account := range m.accounts {
		if account.VerificationToken == token {
			account.IsEmailVerified = true
			account.VerificationToken = ""
			m.accounts[id] = account
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) UpdateAccountPassword(_ context.Context, accountID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.accounts[accountID]
	account.PasswordHash = passwordHash
	m.accounts[accountID] = account
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, accountID, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token] = accountID
	return nil
}

func (m *memStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetUsed[token] {
		return "", store.ErrNotFound
	}
	accountID, ok := m.resets[token]
	if !ok {
		return "", store.ErrNotFound
	}
	return accountID, nil
}

func (m *memStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetUsed[token] = true
	return nil
}

// session store

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash string, account store.Account, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = refreshRecord{account: account, expiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.refresh[tokenHash]
	if !ok || time.Now().After(record.expiresAt) {
		return store.Account{}, store.ErrNotFound
	}
	return record.account, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokedJTI[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokedJTI[jti], nil
}

// groups

func (m *memStore) InsertGroup(_ context.Context, group store.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.ID] = group
	return nil
}

func (m *memStore) UpsertGroupMember(_ context.Context, groupID, accountID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[groupID] == nil {
		m.members[groupID] = make(map[string]string)
	}
	m.members[groupID][accountID] = role
	return nil
}

func (m *memStore) RemoveGroupMember(_ context.Context, groupID, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[groupID], accountID)
	return nil
}

func (m *memStore) ListGroupMembers(_ context.Context, groupID string) ([]store.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.GroupMember
	for accountID, role := range m.members[groupID] {
		member := store.GroupMember{GroupID: groupID, AccountID: accountID, Role: role}
		if account, ok := m.accounts[accountID]; ok {
			member.DisplayName = account.DisplayName
			member.Email = account.Email
		}
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *memStore) AddGroupParent(_ context.Context, childID, parentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parents[childID] == nil {
		m.parents[childID] = make(map[string]bool)
	}
	m.parents[childID][parentID] = true
	return nil
}

func (m *memStore) RemoveGroupParent(_ context.Context, childID, parentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parents[childID], parentID)
	return nil
}

func (m *memStore) LoadGroupGraph(_ context.Context, rootGroupID string) (*permissions.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	graph := permissions.NewGraph()
	visited := make(map[string]bool)
	queue := []string{rootGroupID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		group, ok := m.groups[id]
		if !ok {
			continue
		}
		graph.AddGroup(id, permissions.GroupKind(group.Kind))
		for accountID, role := range m.members[id] {
			graph.SetMember(id, accountID, roles.Normalize(role))
		}
		for parentID := range m.parents[id] {
			graph.AddParent(id, parentID)
			queue = append(queue, parentID)
		}
	}
	return graph, nil
}

// spaces

func (m *memStore) InsertSpace(_ context.Context, space store.Space) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	space.CreatedAt = time.Now()
	space.UpdatedAt = space.CreatedAt
	m.spaces[space.ID] = space
	return nil
}

func (m *memStore) GetSpace(_ context.Context, spaceID string) (store.Space, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	space, ok := m.spaces[spaceID]
	if !ok {
		return store.Space{}, store.ErrNotFound
	}
	return space, nil
}

func (m *memStore) ListSpacesForAccount(ctx context.Context, accountID string) ([]store.Space, error) {
	m.mu.Lock()
	spaces := make([]store.Space, 0, len(m.spaces))
	for _, space := range m.spaces {
		spaces = append(spaces, space)
	}
	m.mu.Unlock()

	var out []store.Space
	for _, space := range spaces {
		graph, err := m.LoadGroupGraph(ctx, space.GroupID)
		if err != nil {
			return nil, err
		}
		if _, ok := graph.EffectiveRole(accountID, space.GroupID); ok {
			out = append(out, space)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateSpace(_ context.Context, spaceID, name, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	space := m.spaces[spaceID]
	space.Name = name
	space.Description = description
	space.UpdatedAt = time.Now()
	m.spaces[spaceID] = space
	return nil
}

func (m *memStore) DeleteSpace(_ context.Context, spaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spaces, spaceID)
	return nil
}

// documents

func (m *memStore) InsertDocument(_ context.Context, doc store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	m.documents[doc.ID] = doc
	return nil
}

func (m *memStore) GetDocument(_ context.Context, documentID string) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[documentID]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return doc, nil
}

func (m *memStore) ListDocumentsForAccount(ctx context.Context, accountID string) ([]store.Document, error) {
	m.mu.Lock()
	docs := make([]store.Document, 0, len(m.documents))
	for _, doc := range m.documents {
		docs = append(docs, doc)
	}
	m.mu.Unlock()

	var out []store.Document
	for _, doc := range docs {
		if doc.DeletedAt != nil {
			continue
		}
		graph, err := m.LoadGroupGraph(ctx, doc.GroupID)
		if err != nil {
			return nil, err
		}
		if _, ok := graph.EffectiveRole(accountID, doc.GroupID); ok {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListDocumentsBySpace(_ context.Context, spaceID string) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Document
	for _, doc := range m.documents {
		if doc.SpaceID != nil && *doc.SpaceID == spaceID && doc.DeletedAt == nil {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateDocumentContent(_ context.Context, documentID, title, content, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.documents[documentID]
	doc.Title = title
	doc.Content = content
	doc.UpdatedBy = updatedBy
	doc.UpdatedAt = time.Now()
	m.documents[documentID] = doc
	return nil
}

func (m *memStore) MoveDocumentToSpace(_ context.Context, documentID string, spaceID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.documents[documentID]
	doc.SpaceID = spaceID
	m.documents[documentID] = doc
	return nil
}

func (m *memStore) SetDocumentDeleted(_ context.Context, documentID string, deleted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.documents[documentID]
	if deleted {
		now := time.Now()
		doc.DeletedAt = &now
	} else {
		doc.DeletedAt = nil
	}
	m.documents[documentID] = doc
	return nil
}

// transactions

func (m *memStore) AppendTransaction(_ context.Context, txn store.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn.Seq = int64(len(m.txns[txn.DocumentID]) + 1)
	m.txns[txn.DocumentID] = append(m.txns[txn.DocumentID], txn)
	return nil
}

func (m *memStore) ListTransactions(_ context.Context, documentID string) ([]store.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Transaction, len(m.txns[documentID]))
	copy(out, m.txns[documentID])
	return out, nil
}

// invites

func (m *memStore) InsertInviteLink(_ context.Context, link store.InviteLink) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link.ID = util.NewUUID()
	link.CreatedAt = time.Now()
	m.invites[link.ID] = link
	return link.ID, nil
}

func (m *memStore) GetInviteLink(_ context.Context, linkID string) (store.InviteLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.invites[linkID]
	if !ok {
		return store.InviteLink{}, store.ErrNotFound
	}
	return link, nil
}

func (m *memStore) GetInviteLinkByToken(_ context.Context, token string) (store.InviteLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, link := range m.invites {
		if link.Token != token || link.RevokedAt != nil {
			continue
		}
		if link.ExpiresAt != nil && time.Now().After(*link.ExpiresAt) {
			continue
		}
		return link, nil
	}
	return store.InviteLink{}, store.ErrNotFound
}

func (m *memStore) ListInviteLinks(_ context.Context, targetGroupID string) ([]store.InviteLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.InviteLink
	for _, link := range m.invites {
		if link.TargetGroupID == targetGroupID {
			out = append(out, link)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) RevokeInviteLink(_ context.Context, linkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.invites[linkID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	link.RevokedAt = &now
	m.invites[linkID] = link
	return nil
}

func (m *memStore) IncrementInviteAccess(_ context.Context, linkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link := m.invites[linkID]
	link.AccessCount++
	now := time.Now()
	link.LastAccessedAt = &now
	m.invites[linkID] = link
	return nil
}

// assets

func (m *memStore) InsertAsset(_ context.Context, asset store.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset.CreatedAt = time.Now()
	m.assets[asset.ID] = asset
	return nil
}

func (m *memStore) GetAsset(_ context.Context, assetID string) (store.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[assetID]
	if !ok {
		return store.Asset{}, store.ErrNotFound
	}
	return asset, nil
}

func (m *memStore) ListAssets(_ context.Context, documentID string) ([]store.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Asset
	for _, asset := range m.assets {
		if asset.DocumentID == documentID {
			out = append(out, asset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteAsset(_ context.Context, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assets, assetID)
	return nil
}

// fake peripherals

type fakeArchive struct {
	mu        sync.Mutex
	snapshots map[string][]string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{snapshots: make(map[string][]string)}
}

func (f *fakeArchive) EnsureDocumentRepo(documentID, content, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshots[documentID]; !ok {
		f.snapshots[documentID] = []string{content}
	}
	return nil
}

func (f *fakeArchive) CommitSnapshot(documentID, content, _, _ string) (store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[documentID] = append(f.snapshots[documentID], content)
	return store.CommitInfo{Hash: fmt.Sprintf("hash-%d", len(f.snapshots[documentID])-1), CreatedAt: time.Now()}, nil
}

func (f *fakeArchive) HeadContent(documentID string) (string, store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions := f.snapshots[documentID]
	if len(versions) == 0 {
		return "", store.CommitInfo{}, errors.New("no snapshots")
	}
	return versions[len(versions)-1], store.CommitInfo{Hash: fmt.Sprintf("hash-%d", len(versions)-1)}, nil
}

func (f *fakeArchive) ContentAtHash(documentID, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, content := range f.snapshots[documentID] {
		if fmt.Sprintf("hash-%d", i) == hash {
			return content, nil
		}
	}
	return "", errors.New("unknown hash")
}

func (f *fakeArchive) History(documentID string, limit int) ([]store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CommitInfo
	for i := len(f.snapshots[documentID]) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, store.CommitInfo{Hash: fmt.Sprintf("hash-%d", i)})
	}
	return out, nil
}

func (f *fakeArchive) CreateNamedVersion(string, string, string) error { return nil }

func (f *fakeArchive) ListNamedVersions(string) ([]store.NamedVersion, error) { return nil, nil }

type fakeSearch struct {
	mu      sync.Mutex
	docs    map[string]search.DocumentRecord
	spaces  map[string]search.SpaceRecord
	deleted []string
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{docs: make(map[string]search.DocumentRecord), spaces: make(map[string]search.SpaceRecord)}
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []search.Result
	for _, doc := range f.docs {
		if q.Text == "" || contains(doc.Title, q.Text) || contains(doc.Content, q.Text) {
			results = append(results, search.Result{Type: search.ResultDocument, ID: doc.ID, Title: doc.Title})
		}
	}
	for _, sp := range f.spaces {
		if q.Text == "" || contains(sp.Name, q.Text) {
			results = append(results, search.Result{Type: search.ResultSpace, ID: sp.ID, Title: sp.Name})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return search.Response{Results: results, Total: len(results), Query: q.Text}
}

func (f *fakeSearch) IndexDocument(doc search.DocumentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
}

func (f *fakeSearch) IndexSpace(sp search.SpaceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spaces[sp.ID] = sp
}

func (f *fakeSearch) DeleteDocument(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
}

func (f *fakeSearch) DeleteSpace(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.spaces, id)
}

type fakeAssets struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{objects: make(map[string][]byte)}
}

func (f *fakeAssets) Upload(_ context.Context, objectKey string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey] = data
	return nil
}

func (f *fakeAssets) Download(_ context.Context, objectKey string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectKey]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeAssets) Delete(_ context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectKey)
	return nil
}

type fakeEmail struct{}

func (fakeEmail) IsConfigured() bool { return false }

func (fakeEmail) SendVerificationEmail(string, string, string) error { return nil }

func (fakeEmail) SendPasswordResetEmail(string, string, string) error { return nil }

func (fakeEmail) SendInviteEmail(string, string, string, string, string) error { return nil }

func contains(haystack, needle string) bool {
	return needle != "" && bytes.Contains([]byte(haystack), []byte(needle))
}

// test rig

type testRig struct {
	server  *httptest.Server
	store   *memStore
	search  *fakeSearch
	archive *fakeArchive
	assets  *fakeAssets
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	ms := newMemStore()
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		PublicURL:  "http://localhost",
	}
	fs := newFakeSearch()
	fa := newFakeArchive()
	fo := newFakeAssets()
	svc := New(cfg, Deps{
		Store:    ms,
		Sessions: ms,
		AuthPW:   authpw.NewService(ms),
		Archive:  fa,
		Search:   fs,
		Assets:   fo,
		Email:    fakeEmail{},
		Log:      zap.NewNop(),
	})
	hub := realtime.NewHub(nil, zap.NewNop())
	httpServer := NewHTTPServer(svc, hub, "*", zap.NewNop())
	server := httptest.NewServer(httpServer.Handler())
	t.Cleanup(server.Close)
	return &testRig{server: server, store: ms, search: fs, archive: fa, assets: fo}
}

// signUpAndSignIn runs the full signup, verify, signin flow over HTTP and
// returns the access token.
func (rig *testRig) signUpAndSignIn(t *testing.T, email, displayName string) string {
	t.Helper()

	signup := rig.request(t, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       email,
		"password":    "correct-horse",
		"displayName": displayName,
	})
	if signup.status != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", signup.status, signup.raw)
	}
	verifyToken, _ := signup.body["devVerificationToken"].(string)
	if verifyToken == "" {
		t.Fatalf("expected dev verification token, got %v", signup.body)
	}

	verify := rig.request(t, http.MethodPost, "/api/auth/verify-email", "", map[string]any{"token": verifyToken})
	if verify.status != http.StatusOK {
		t.Fatalf("verify status = %d body=%s", verify.status, verify.raw)
	}

	signin := rig.request(t, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    email,
		"password": "correct-horse",
	})
	if signin.status != http.StatusOK {
		t.Fatalf("signin status = %d body=%s", signin.status, signin.raw)
	}
	token, _ := signin.body["accessToken"].(string)
	if token == "" {
		t.Fatalf("expected access token, got %v", signin.body)
	}
	return token
}

type apiResponse struct {
	status int
	body   map[string]any
	raw    string
	header http.Header
}

func (rig *testRig) request(t *testing.T, method, path, token string, payload any) apiResponse {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, rig.server.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	parsed := make(map[string]any)
	_ = json.Unmarshal(raw, &parsed)
	return apiResponse{status: resp.StatusCode, body: parsed, raw: string(raw), header: resp.Header}
}
