package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ccssmnn/alkalye-sub002/internal/permissions"
	"github.com/ccssmnn/alkalye-sub002/internal/roles"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Accounts

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, display_name, email, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, account.ID, account.DisplayName, account.Email, account.PasswordHash, account.IsEmailVerified, account.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	const query = `
		SELECT id, display_name, email, password_hash, is_email_verified, verification_token, created_at
		FROM accounts WHERE email = $1
	`
	var account Account
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&account.ID, &account.DisplayName, &account.Email, &account.PasswordHash,
		&account.IsEmailVerified, &account.VerificationToken, &account.CreatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, accountID string) (Account, error) {
	const query = `
		SELECT id, display_name, email, password_hash, is_email_verified, verification_token, created_at
		FROM accounts WHERE id = $1
	`
	var account Account
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&account.ID, &account.DisplayName, &account.Email, &account.PasswordHash,
		&account.IsEmailVerified, &account.VerificationToken, &account.CreatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *PostgresStore) UpdateVerificationToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, accountID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyAccountEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_token <> ''
			AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateAccountPassword(ctx context.Context, accountID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, accountID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, account_id, expires_at) VALUES ($1, $2, $3)
	`, token, accountID, expiresAt)
	if err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var accountID string
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&accountID)
	if err != nil {
		return "", err
	}
	return accountID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Refresh sessions and access-token revocation (Postgres fallback when Redis
// is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, account Account, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, account_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET account_id=EXCLUDED.account_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, account.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Account, error) {
	const query = `
		SELECT a.id, a.display_name, a.email
		FROM refresh_sessions rs
		JOIN accounts a ON a.id = rs.account_id
		WHERE rs.token_hash = $1 AND rs.revoked_at IS NULL AND rs.expires_at > NOW()
	`
	var account Account
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&account.ID, &account.DisplayName, &account.Email)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Groups

func (s *PostgresStore) InsertGroup(ctx context.Context, group Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, kind, resource_id) VALUES ($1, $2, $3)
	`, group.ID, group.Kind, group.ResourceID)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertGroupMember(ctx context.Context, groupID, accountID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, account_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, account_id) DO UPDATE SET role=EXCLUDED.role
	`, groupID, accountID, role)
	if err != nil {
		return fmt.Errorf("upsert group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveGroupMember(ctx context.Context, groupID, accountID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM group_members WHERE group_id=$1 AND account_id=$2
	`, groupID, accountID)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGroupMembers(ctx context.Context, groupID string) ([]GroupMember, error) {
	const query = `
		SELECT gm.group_id, gm.account_id, gm.role, gm.added_at, a.display_name, a.email
		FROM group_members gm
		JOIN accounts a ON a.id = gm.account_id
		WHERE gm.group_id = $1
		ORDER BY gm.added_at
	`
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.GroupID, &m.AccountID, &m.Role, &m.AddedAt, &m.DisplayName, &m.Email); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) AddGroupParent(ctx context.Context, childID, parentID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_parents (child_id, parent_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, childID, parentID)
	if err != nil {
		return fmt.Errorf("add group parent: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveGroupParent(ctx context.Context, childID, parentID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM group_parents WHERE child_id=$1 AND parent_id=$2
	`, childID, parentID)
	if err != nil {
		return fmt.Errorf("remove group parent: %w", err)
	}
	return nil
}

// LoadGroupGraph loads the permission graph reachable from rootGroupID:
// the group itself plus all transitive parents, with members and edges.
func (s *PostgresStore) LoadGroupGraph(ctx context.Context, rootGroupID string) (*permissions.Graph, error) {
	const query = `
		WITH RECURSIVE reachable AS (
			SELECT id FROM groups WHERE id = $1
			UNION
			SELECT gp.parent_id FROM group_parents gp
			JOIN reachable r ON r.id = gp.child_id
		)
		SELECT g.id, g.kind,
			COALESCE(gp.parent_id, ''),
			COALESCE(gm.account_id, ''), COALESCE(gm.role, '')
		FROM reachable r
		JOIN groups g ON g.id = r.id
		LEFT JOIN group_parents gp ON gp.child_id = g.id
		LEFT JOIN group_members gm ON gm.group_id = g.id
	`
	rows, err := s.db.QueryContext(ctx, query, rootGroupID)
	if err != nil {
		return nil, fmt.Errorf("load group graph: %w", err)
	}
	defer rows.Close()

	graph := permissions.NewGraph()
	for rows.Next() {
		var id, kind, parentID, accountID, role string
		if err := rows.Scan(&id, &kind, &parentID, &accountID, &role); err != nil {
			return nil, fmt.Errorf("scan group graph row: %w", err)
		}
		graph.AddGroup(id, permissions.GroupKind(kind))
		if parentID != "" {
			graph.AddParent(id, parentID)
		}
		if accountID != "" {
			graph.SetMember(id, accountID, roles.Normalize(role))
		}
	}
	return graph, rows.Err()
}

// ---------------------------------------------------------------------------
// Spaces

func (s *PostgresStore) InsertSpace(ctx context.Context, space Space) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spaces (id, name, description, group_id, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, space.ID, space.Name, space.Description, space.GroupID, space.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert space: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSpace(ctx context.Context, spaceID string) (Space, error) {
	const query = `
		SELECT id, name, description, group_id, created_by, created_at, updated_at
		FROM spaces WHERE id = $1
	`
	var space Space
	err := s.db.QueryRowContext(ctx, query, spaceID).Scan(
		&space.ID, &space.Name, &space.Description, &space.GroupID,
		&space.CreatedBy, &space.CreatedAt, &space.UpdatedAt,
	)
	if err != nil {
		return Space{}, err
	}
	return space, nil
}

// ListSpacesForAccount returns spaces whose group (or a transitive parent,
// e.g. an invite group) carries the account as a member.
func (s *PostgresStore) ListSpacesForAccount(ctx context.Context, accountID string) ([]Space, error) {
	const query = `
		SELECT DISTINCT sp.id, sp.name, sp.description, sp.group_id, sp.created_by, sp.created_at, sp.updated_at
		FROM spaces sp
		JOIN LATERAL (
			WITH RECURSIVE reachable AS (
				SELECT sp.group_id AS id
				UNION
				SELECT gp.parent_id FROM group_parents gp JOIN reachable r ON r.id = gp.child_id
			)
			SELECT 1 FROM reachable r
			JOIN group_members gm ON gm.group_id = r.id
			WHERE gm.account_id = $1
			LIMIT 1
		) member ON TRUE
		ORDER BY sp.name
	`
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []Space
	for rows.Next() {
		var space Space
		if err := rows.Scan(&space.ID, &space.Name, &space.Description, &space.GroupID,
			&space.CreatedBy, &space.CreatedAt, &space.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		spaces = append(spaces, space)
	}
	return spaces, rows.Err()
}

func (s *PostgresStore) UpdateSpace(ctx context.Context, spaceID, name, description string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE spaces SET name=$2, description=$3, updated_at=NOW() WHERE id=$1
	`, spaceID, name, description)
	if err != nil {
		return fmt.Errorf("update space: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSpace(ctx context.Context, spaceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM spaces WHERE id=$1`, spaceID)
	if err != nil {
		return fmt.Errorf("delete space: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Documents

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, space_id, group_id, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, doc.ID, doc.Title, doc.Content, doc.SpaceID, doc.GroupID, doc.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	const query = `
		SELECT id, title, content, space_id, group_id, created_by, updated_by, created_at, updated_at, deleted_at
		FROM documents WHERE id = $1
	`
	var doc Document
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(
		&doc.ID, &doc.Title, &doc.Content, &doc.SpaceID, &doc.GroupID,
		&doc.CreatedBy, &doc.UpdatedBy, &doc.CreatedAt, &doc.UpdatedAt, &doc.DeletedAt,
	)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ListDocumentsForAccount returns live documents the account can reach
// through any group path, personal and space-cascaded alike.
func (s *PostgresStore) ListDocumentsForAccount(ctx context.Context, accountID string) ([]Document, error) {
	const query = `
		SELECT DISTINCT d.id, d.title, d.content, d.space_id, d.group_id, d.created_by, d.updated_by,
			d.created_at, d.updated_at, d.deleted_at
		FROM documents d
		JOIN LATERAL (
			WITH RECURSIVE reachable AS (
				SELECT d.group_id AS id
				UNION
				SELECT gp.parent_id FROM group_parents gp JOIN reachable r ON r.id = gp.child_id
			)
			SELECT 1 FROM reachable r
			JOIN group_members gm ON gm.group_id = r.id
			WHERE gm.account_id = $1
			LIMIT 1
		) member ON TRUE
		WHERE d.deleted_at IS NULL
		ORDER BY d.updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) ListDocumentsBySpace(ctx context.Context, spaceID string) ([]Document, error) {
	const query = `
		SELECT id, title, content, space_id, group_id, created_by, updated_by, created_at, updated_at, deleted_at
		FROM documents WHERE space_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list space documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.SpaceID, &doc.GroupID,
			&doc.CreatedBy, &doc.UpdatedBy, &doc.CreatedAt, &doc.UpdatedAt, &doc.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, documentID, title, content, updatedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET title=$2, content=$3, updated_by=$4, updated_at=NOW() WHERE id=$1
	`, documentID, title, content, updatedBy)
	if err != nil {
		return fmt.Errorf("update document content: %w", err)
	}
	return nil
}

func (s *PostgresStore) MoveDocumentToSpace(ctx context.Context, documentID string, spaceID *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET space_id=$2, updated_at=NOW() WHERE id=$1
	`, documentID, spaceID)
	if err != nil {
		return fmt.Errorf("move document: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetDocumentDeleted(ctx context.Context, documentID string, deleted bool) error {
	var err error
	if deleted {
		_, err = s.db.ExecContext(ctx, `UPDATE documents SET deleted_at=NOW() WHERE id=$1`, documentID)
	} else {
		_, err = s.db.ExecContext(ctx, `UPDATE documents SET deleted_at=NULL WHERE id=$1`, documentID)
	}
	if err != nil {
		return fmt.Errorf("set document deleted: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Document transactions (the time machine's log)

// AppendTransaction assigns the next per-document sequence number inside the
// insert. Two concurrent appenders can pick the same number, which surfaces
// as a primary key violation, so the insert is retried with a fresh read.
func (s *PostgresStore) AppendTransaction(ctx context.Context, txn Transaction) error {
	const query = `
		INSERT INTO document_transactions (document_id, seq, made_at, account_id, change)
		VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM document_transactions WHERE document_id=$1), $2, $3, $4)
	`
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		_, err = s.db.ExecContext(ctx, query, txn.DocumentID, txn.MadeAt, txn.AccountID, txn.Change)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue
		}
		break
	}
	return fmt.Errorf("append transaction: %w", err)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, documentID string) ([]Transaction, error) {
	const query = `
		SELECT document_id, seq, made_at, account_id, change
		FROM document_transactions WHERE document_id=$1
		ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var txn Transaction
		var change []byte
		if err := rows.Scan(&txn.DocumentID, &txn.Seq, &txn.MadeAt, &txn.AccountID, &change); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txn.Change = json.RawMessage(change)
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (s *PostgresStore) CountTransactions(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_transactions WHERE document_id=$1`, documentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Invite links

func (s *PostgresStore) InsertInviteLink(ctx context.Context, link InviteLink) (string, error) {
	const query = `
		INSERT INTO invite_links (token, group_id, target_group_id, role, password_hash, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id string
	err := s.db.QueryRowContext(ctx, query,
		link.Token, link.GroupID, link.TargetGroupID, link.Role, link.PasswordHash, link.CreatedBy, link.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert invite link: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetInviteLink(ctx context.Context, linkID string) (InviteLink, error) {
	return s.getInviteLink(ctx, `id = $1`, linkID)
}

// GetInviteLinkByToken returns a live (unrevoked, unexpired) link.
func (s *PostgresStore) GetInviteLinkByToken(ctx context.Context, token string) (InviteLink, error) {
	return s.getInviteLink(ctx, `token = $1 AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > NOW())`, token)
}

func (s *PostgresStore) getInviteLink(ctx context.Context, where string, arg any) (InviteLink, error) {
	query := `
		SELECT id, token, group_id, target_group_id, role, password_hash, created_by,
			expires_at, revoked_at, access_count, last_accessed_at, created_at
		FROM invite_links WHERE ` + where
	var link InviteLink
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&link.ID, &link.Token, &link.GroupID, &link.TargetGroupID, &link.Role, &link.PasswordHash,
		&link.CreatedBy, &link.ExpiresAt, &link.RevokedAt, &link.AccessCount, &link.LastAccessedAt, &link.CreatedAt,
	)
	if err != nil {
		return InviteLink{}, err
	}
	return link, nil
}

func (s *PostgresStore) ListInviteLinks(ctx context.Context, targetGroupID string) ([]InviteLink, error) {
	const query = `
		SELECT id, token, group_id, target_group_id, role, password_hash, created_by,
			expires_at, revoked_at, access_count, last_accessed_at, created_at
		FROM invite_links WHERE target_group_id=$1 AND revoked_at IS NULL
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, targetGroupID)
	if err != nil {
		return nil, fmt.Errorf("list invite links: %w", err)
	}
	defer rows.Close()

	var links []InviteLink
	for rows.Next() {
		var link InviteLink
		if err := rows.Scan(&link.ID, &link.Token, &link.GroupID, &link.TargetGroupID, &link.Role,
			&link.PasswordHash, &link.CreatedBy, &link.ExpiresAt, &link.RevokedAt,
			&link.AccessCount, &link.LastAccessedAt, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invite link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *PostgresStore) RevokeInviteLink(ctx context.Context, linkID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE invite_links SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL
	`, linkID)
	if err != nil {
		return fmt.Errorf("revoke invite link: %w", err)
	}
	return nil
}

func (s *PostgresStore) IncrementInviteAccess(ctx context.Context, linkID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE invite_links SET access_count=access_count+1, last_accessed_at=NOW() WHERE id=$1
	`, linkID)
	if err != nil {
		return fmt.Errorf("record invite access: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Assets

func (s *PostgresStore) InsertAsset(ctx context.Context, asset Asset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (id, document_id, name, content_type, size, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, asset.ID, asset.DocumentID, asset.Name, asset.ContentType, asset.Size, asset.ObjectKey, asset.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAsset(ctx context.Context, assetID string) (Asset, error) {
	const query = `
		SELECT id, document_id, name, content_type, size, object_key, uploaded_by, created_at
		FROM assets WHERE id=$1
	`
	var asset Asset
	err := s.db.QueryRowContext(ctx, query, assetID).Scan(
		&asset.ID, &asset.DocumentID, &asset.Name, &asset.ContentType,
		&asset.Size, &asset.ObjectKey, &asset.UploadedBy, &asset.CreatedAt,
	)
	if err != nil {
		return Asset{}, err
	}
	return asset, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context, documentID string) ([]Asset, error) {
	const query = `
		SELECT id, document_id, name, content_type, size, object_key, uploaded_by, created_at
		FROM assets WHERE document_id=$1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var asset Asset
		if err := rows.Scan(&asset.ID, &asset.DocumentID, &asset.Name, &asset.ContentType,
			&asset.Size, &asset.ObjectKey, &asset.UploadedBy, &asset.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func (s *PostgresStore) DeleteAsset(ctx context.Context, assetID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id=$1`, assetID)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers shared with search

var ErrNotFound = errors.New("not found")

// IsNotFound normalizes the driver's row-missing error.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound)
}
