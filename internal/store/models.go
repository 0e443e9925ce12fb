package store

import (
	"encoding/json"
	"time"
)

type Account struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Space struct {
	ID          string
	Name        string
	Description string
	GroupID     string // owner group carrying space memberships
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Document struct {
	ID        string
	Title     string
	Content   string  // current markdown
	SpaceID   *string // nil for personal documents
	GroupID   string  // owner group
	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Group is a permission-scoping node: document owner groups, space groups,
// and the invite groups minted per invite link.
type Group struct {
	ID         string
	Kind       string // 'document', 'space', 'invite'
	ResourceID string
	CreatedAt  time.Time
}

type GroupMember struct {
	GroupID   string
	AccountID string
	Role      string
	AddedAt   time.Time
	// Joined for collaborator listings
	DisplayName string
	Email       string
}

type GroupParent struct {
	ChildID  string
	ParentID string
}

// InviteLink grants access without enumerating members: accepting the link
// joins the caller to GroupID, which is a parent of TargetGroupID.
type InviteLink struct {
	ID             string
	Token          string
	GroupID        string // the invite group
	TargetGroupID  string // document or space owner group
	Role           string
	PasswordHash   *string
	CreatedBy      string
	ExpiresAt      *time.Time
	RevokedAt      *time.Time
	AccessCount    int
	LastAccessedAt *time.Time
	CreatedAt      time.Time
}

// Transaction is one persisted entry of a document's edit log.
type Transaction struct {
	DocumentID string
	Seq        int64
	MadeAt     time.Time
	AccountID  string
	Change     json.RawMessage
}

type Asset struct {
	ID          string
	DocumentID  string
	Name        string
	ContentType string
	Size        int64
	ObjectKey   string
	UploadedBy  string
	CreatedAt   time.Time
}

type NamedVersion struct {
	Name      string
	Hash      string
	CreatedBy string
	CreatedAt time.Time
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
