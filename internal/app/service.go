package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccssmnn/alkalye-sub002/internal/auth"
	"github.com/ccssmnn/alkalye-sub002/internal/authpw"
	"github.com/ccssmnn/alkalye-sub002/internal/config"
	"github.com/ccssmnn/alkalye-sub002/internal/export"
	"github.com/ccssmnn/alkalye-sub002/internal/permissions"
	"github.com/ccssmnn/alkalye-sub002/internal/search"
	"github.com/ccssmnn/alkalye-sub002/internal/store"
	"github.com/ccssmnn/alkalye-sub002/internal/timemachine"
	"github.com/ccssmnn/alkalye-sub002/internal/util"
)

// Session is the resolved caller identity on an authenticated request.
// Roles are not part of the session; they are resolved per resource through
// the group graph.
type Session struct {
	Token        string
	RefreshToken string
	AccountID    string
	DisplayName  string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetAccountByID(ctx context.Context, accountID string) (store.Account, error)

	InsertGroup(ctx context.Context, group store.Group) error
	UpsertGroupMember(ctx context.Context, groupID, accountID, role string) error
	RemoveGroupMember(ctx context.Context, groupID, accountID string) error
	ListGroupMembers(ctx context.Context, groupID string) ([]store.GroupMember, error)
	AddGroupParent(ctx context.Context, childID, parentID string) error
	RemoveGroupParent(ctx context.Context, childID, parentID string) error
	LoadGroupGraph(ctx context.Context, rootGroupID string) (*permissions.Graph, error)

	InsertSpace(ctx context.Context, space store.Space) error
	GetSpace(ctx context.Context, spaceID string) (store.Space, error)
	ListSpacesForAccount(ctx context.Context, accountID string) ([]store.Space, error)
	UpdateSpace(ctx context.Context, spaceID, name, description string) error
	DeleteSpace(ctx context.Context, spaceID string) error

	InsertDocument(ctx context.Context, doc store.Document) error
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	ListDocumentsForAccount(ctx context.Context, accountID string) ([]store.Document, error)
	ListDocumentsBySpace(ctx context.Context, spaceID string) ([]store.Document, error)
	UpdateDocumentContent(ctx context.Context, documentID, title, content, updatedBy string) error
	MoveDocumentToSpace(ctx context.Context, documentID string, spaceID *string) error
	SetDocumentDeleted(ctx context.Context, documentID string, deleted bool) error

	AppendTransaction(ctx context.Context, txn store.Transaction) error
	ListTransactions(ctx context.Context, documentID string) ([]store.Transaction, error)

	InsertInviteLink(ctx context.Context, link store.InviteLink) (string, error)
	GetInviteLink(ctx context.Context, linkID string) (store.InviteLink, error)
	GetInviteLinkByToken(ctx context.Context, token string) (store.InviteLink, error)
	ListInviteLinks(ctx context.Context, targetGroupID string) ([]store.InviteLink, error)
	RevokeInviteLink(ctx context.Context, linkID string) error
	IncrementInviteAccess(ctx context.Context, linkID string) error

	InsertAsset(ctx context.Context, asset store.Asset) error
	GetAsset(ctx context.Context, assetID string) (store.Asset, error)
	ListAssets(ctx context.Context, documentID string) ([]store.Asset, error)
	DeleteAsset(ctx context.Context, assetID string) error
}

// sessionStore is satisfied by both the Redis store and the Postgres
// fallback.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, account store.Account, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Account, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type archiveService interface {
	EnsureDocumentRepo(documentID, content, author string) error
	CommitSnapshot(documentID, content, author, message string) (store.CommitInfo, error)
	HeadContent(documentID string) (string, store.CommitInfo, error)
	ContentAtHash(documentID, hash string) (string, error)
	History(documentID string, limit int) ([]store.CommitInfo, error)
	CreateNamedVersion(documentID, hash, name string) error
	ListNamedVersions(documentID string) ([]store.NamedVersion, error)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	IndexSpace(sp search.SpaceRecord)
	DeleteDocument(id string)
	DeleteSpace(id string)
}

type assetStorage interface {
	Upload(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectKey string) error
}

type emailSender interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendInviteEmail(to, inviterName, targetName, role, inviteURL string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	archive  archiveService
	search   searchService
	assets   assetStorage
	exporter *export.Service
	email    emailSender
	log      *zap.Logger

	// One time machine per document, lazily built; each one invalidates
	// itself when the transaction count changes.
	machineMu sync.Mutex
	machines  map[string]*timemachine.TimeMachine
}

type Deps struct {
	Store    dataStore
	Sessions sessionStore
	AuthPW   *authpw.Service
	Archive  archiveService
	Search   searchService
	Assets   assetStorage
	Email    emailSender
	Log      *zap.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		authpw:   deps.AuthPW,
		archive:  deps.Archive,
		search:   deps.Search,
		assets:   deps.Assets,
		email:    deps.Email,
		log:      deps.Log,
		machines: make(map[string]*timemachine.TimeMachine),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.assets == nil {
		s.assets = disabledAssetStorage{}
	}
	s.exporter = export.NewService(&exportStore{service: s})
	return s
}

// disabledAssetStorage stands in when no object store is configured.
type disabledAssetStorage struct{}

func (disabledAssetStorage) Upload(context.Context, string, io.Reader, int64, string) error {
	return errAssetsUnavailable()
}

func (disabledAssetStorage) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, errAssetsUnavailable()
}

func (disabledAssetStorage) Delete(context.Context, string) error {
	return errAssetsUnavailable()
}

func errAssetsUnavailable() error {
	return domainError(http.StatusNotImplemented, "ASSETS_UNAVAILABLE", "asset storage is not configured", nil)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// SignUp creates the account and, when SMTP is configured, mails the
// verification link. The token is returned either way so the HTTP layer can
// expose it as a dev bypass.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*authpw.SignUpResponse, error) {
	resp, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, err
	}

	if s.SMTPConfigured() {
		verifyURL := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.cfg.PublicURL, "/"), resp.VerificationToken)
		if err := s.email.SendVerificationEmail(email, displayName, verifyURL); err != nil {
			s.log.Warn("send verification email", zap.String("email", email), zap.Error(err))
		}
	}
	return resp, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, bool, error) {
	resp, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, false, err
	}
	if resp.RequiresVerify {
		return Session{}, true, nil
	}
	session, err := s.issueSession(ctx, resp.Account)
	return session, false, err
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, err := s.authpw.RequestPasswordReset(ctx, email)
	if err != nil {
		return "", err
	}
	if token != "" && s.SMTPConfigured() {
		resetURL := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.PublicURL, "/"), token)
		if err := s.email.SendPasswordResetEmail(email, "", resetURL); err != nil {
			s.log.Warn("send password reset email", zap.String("email", email), zap.Error(err))
		}
	}
	return token, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	account, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// Rotate: the presented token is single use.
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, account)
}

func (s *Service) issueSession(ctx context.Context, account store.Account) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  account.ID,
		Name: account.DisplayName,
		JTI:  jti,
		Exp:  expiresAt,
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), account, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		AccountID:    account.ID,
		DisplayName:  account.DisplayName,
		Email:        account.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:       token,
		AccountID:   claims.Sub,
		DisplayName: claims.Name,
		JTI:         claims.JTI,
		ExpiresAt:   claims.Exp,
	}, nil
}

func (s *Service) SignOut(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}
