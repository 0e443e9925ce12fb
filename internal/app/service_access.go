package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ccssmnn/alkalye-sub002/internal/authpw"
	"github.com/ccssmnn/alkalye-sub002/internal/roles"
	"github.com/ccssmnn/alkalye-sub002/internal/store"
	"github.com/ccssmnn/alkalye-sub002/internal/util"
)

// groupRole resolves the caller's effective role on a group by walking the
// stored graph: the group itself, its invite groups, the space group of a
// document, and that space's invite groups.
func (s *Service) groupRole(ctx context.Context, accountID, groupID string) (roles.Role, bool, error) {
	graph, err := s.store.LoadGroupGraph(ctx, groupID)
	if err != nil {
		return "", false, fmt.Errorf("load group graph: %w", err)
	}
	role, ok := graph.EffectiveRole(accountID, groupID)
	return role, ok, nil
}

// requireDocument loads the document and checks the caller may perform the
// action on it. Callers without any role get 404 rather than 403, so the
// existence of documents is not leaked.
func (s *Service) requireDocument(ctx context.Context, session Session, documentID string, action roles.Action) (store.Document, roles.Role, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Document{}, "", notFound("document not found")
		}
		return store.Document{}, "", err
	}
	role, ok, err := s.groupRole(ctx, session.AccountID, doc.GroupID)
	if err != nil {
		return store.Document{}, "", err
	}
	if !ok {
		return store.Document{}, "", notFound("document not found")
	}
	// Soft-deleted documents stay visible to managers so they can undelete.
	if doc.DeletedAt != nil && !roles.Can(role, roles.ActionManage) {
		return store.Document{}, "", notFound("document not found")
	}
	if !roles.Can(role, action) {
		return store.Document{}, "", forbidden(fmt.Sprintf("%s role cannot %s this document", role, action))
	}
	return doc, role, nil
}

func (s *Service) requireSpace(ctx context.Context, session Session, spaceID string, action roles.Action) (store.Space, roles.Role, error) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Space{}, "", notFound("space not found")
		}
		return store.Space{}, "", err
	}
	role, ok, err := s.groupRole(ctx, session.AccountID, space.GroupID)
	if err != nil {
		return store.Space{}, "", err
	}
	if !ok {
		return store.Space{}, "", notFound("space not found")
	}
	if !roles.Can(role, action) {
		return store.Space{}, "", forbidden(fmt.Sprintf("%s role cannot %s this space", role, action))
	}
	return space, role, nil
}

// DocumentRole resolves the caller's effective role on a document without
// requiring any particular action. Used by the websocket upgrade path.
func (s *Service) DocumentRole(ctx context.Context, session Session, documentID string) (store.Document, roles.Role, error) {
	return s.requireDocument(ctx, session, documentID, roles.ActionRead)
}

func (s *Service) ListCollaborators(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionRead)
	if err != nil {
		return nil, err
	}

	graph, err := s.store.LoadGroupGraph(ctx, doc.GroupID)
	if err != nil {
		return nil, err
	}

	collaborators := graph.Collaborators(doc.GroupID)
	items := make([]map[string]any, 0, len(collaborators))
	for _, c := range collaborators {
		item := map[string]any{
			"accountId": c.AccountID,
			"role":      c.Role,
		}
		if account, err := s.store.GetAccountByID(ctx, c.AccountID); err == nil {
			item["displayName"] = account.DisplayName
			item["email"] = account.Email
		}
		if c.InviteGroupID != "" {
			item["viaInvite"] = true
		}
		items = append(items, item)
	}
	return map[string]any{"collaborators": items}, nil
}

func (s *Service) SetCollaboratorRole(ctx context.Context, session Session, documentID, accountID, role string) (map[string]any, error) {
	doc, callerRole, err := s.requireDocument(ctx, session, documentID, roles.ActionManage)
	if err != nil {
		return nil, err
	}
	if !roles.Valid(role) {
		return nil, validation("role must be one of reader, writer, manager, admin")
	}
	// Granting admin takes admin; managers may hand out everything below.
	if roles.Role(role) == roles.RoleAdmin && callerRole != roles.RoleAdmin {
		return nil, forbidden("only admins can grant the admin role")
	}
	if err := s.store.UpsertGroupMember(ctx, doc.GroupID, accountID, role); err != nil {
		return nil, err
	}
	return map[string]any{"accountId": accountID, "role": role}, nil
}

func (s *Service) RemoveCollaborator(ctx context.Context, session Session, documentID, accountID string) error {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionManage)
	if err != nil {
		return err
	}
	return s.store.RemoveGroupMember(ctx, doc.GroupID, accountID)
}

type CreateInviteInput struct {
	Role      string `json:"role"`
	Password  string `json:"password"`
	ExpiresIn int    `json:"expiresInSeconds"`
	Email     string `json:"email"`
}

// CreateDocumentInvite mints an invite link for a document. The link gets its
// own invite group parented to the document group; accepting the link joins
// the caller to that group.
func (s *Service) CreateDocumentInvite(ctx context.Context, session Session, documentID string, input CreateInviteInput) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.createInvite(ctx, session, doc.GroupID, doc.Title, input)
}

func (s *Service) CreateSpaceInvite(ctx context.Context, session Session, spaceID string, input CreateInviteInput) (map[string]any, error) {
	space, _, err := s.requireSpace(ctx, session, spaceID, roles.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.createInvite(ctx, session, space.GroupID, space.Name, input)
}

func (s *Service) createInvite(ctx context.Context, session Session, targetGroupID, targetName string, input CreateInviteInput) (map[string]any, error) {
	role, ok, err := s.groupRole(ctx, session.AccountID, targetGroupID)
	if err != nil {
		return nil, err
	}
	if !ok || role != roles.RoleAdmin {
		return nil, forbidden("only admins can create invite links")
	}
	if !roles.Valid(input.Role) {
		return nil, validation("role must be one of reader, writer, manager, admin")
	}

	inviteGroupID := util.NewID("grp")
	if err := s.store.InsertGroup(ctx, store.Group{ID: inviteGroupID, Kind: "invite", ResourceID: targetGroupID}); err != nil {
		return nil, err
	}
	if err := s.store.AddGroupParent(ctx, targetGroupID, inviteGroupID); err != nil {
		return nil, err
	}

	link := store.InviteLink{
		Token:         util.NewID("inv"),
		GroupID:       inviteGroupID,
		TargetGroupID: targetGroupID,
		Role:          input.Role,
		CreatedBy:     session.AccountID,
	}
	if input.Password != "" {
		hash, err := authpw.HashPassword(input.Password)
		if err != nil {
			return nil, err
		}
		link.PasswordHash = &hash
	}
	if input.ExpiresIn > 0 {
		expires := time.Now().Add(time.Duration(input.ExpiresIn) * time.Second)
		link.ExpiresAt = &expires
	}

	linkID, err := s.store.InsertInviteLink(ctx, link)
	if err != nil {
		return nil, err
	}

	inviteURL := fmt.Sprintf("%s/invites/%s", s.cfg.PublicURL, link.Token)
	if input.Email != "" && s.SMTPConfigured() {
		if err := s.email.SendInviteEmail(input.Email, session.DisplayName, targetName, input.Role, inviteURL); err != nil {
			s.log.Warn("send invite email", zap.String("email", input.Email), zap.Error(err))
		}
	}

	return map[string]any{
		"id":        linkID,
		"token":     link.Token,
		"url":       inviteURL,
		"role":      link.Role,
		"protected": link.PasswordHash != nil,
		"expiresAt": link.ExpiresAt,
	}, nil
}

func (s *Service) ListDocumentInvites(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, _, err := s.requireDocument(ctx, session, documentID, roles.ActionManage)
	if err != nil {
		return nil, err
	}
	links, err := s.store.ListInviteLinks(ctx, doc.GroupID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(links))
	for _, link := range links {
		items = append(items, map[string]any{
			"id":             link.ID,
			"role":           link.Role,
			"protected":      link.PasswordHash != nil,
			"expiresAt":      link.ExpiresAt,
			"revokedAt":      link.RevokedAt,
			"accessCount":    link.AccessCount,
			"lastAccessedAt": link.LastAccessedAt,
			"createdAt":      link.CreatedAt,
		})
	}
	return map[string]any{"invites": items}, nil
}

// RevokeInvite removes the invite group from the target group's parents.
// Accounts whose only path to the target was this invite lose access at once;
// accounts with an independent path keep theirs.
func (s *Service) RevokeInvite(ctx context.Context, session Session, linkID string) error {
	link, err := s.store.GetInviteLink(ctx, linkID)
	if err != nil {
		if store.IsNotFound(err) {
			return notFound("invite not found")
		}
		return err
	}
	role, ok, err := s.groupRole(ctx, session.AccountID, link.TargetGroupID)
	if err != nil {
		return err
	}
	if !ok || !roles.Can(role, roles.ActionManage) {
		return forbidden("only managers can revoke invite links")
	}
	if err := s.store.RevokeInviteLink(ctx, linkID); err != nil {
		return err
	}
	return s.store.RemoveGroupParent(ctx, link.TargetGroupID, link.GroupID)
}

// AcceptInvite joins the caller to the link's invite group with the link's
// role. Repeat acceptance is idempotent.
func (s *Service) AcceptInvite(ctx context.Context, session Session, token, password string) (map[string]any, error) {
	link, err := s.store.GetInviteLinkByToken(ctx, token)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, notFound("invite not found or no longer valid")
		}
		return nil, err
	}
	if link.PasswordHash != nil && !authpw.CheckPassword(*link.PasswordHash, password) {
		return nil, domainError(http.StatusForbidden, "INVITE_PASSWORD_REQUIRED", "invite password missing or wrong", nil)
	}
	if err := s.store.UpsertGroupMember(ctx, link.GroupID, session.AccountID, link.Role); err != nil {
		return nil, err
	}
	if err := s.store.IncrementInviteAccess(ctx, link.ID); err != nil {
		s.log.Warn("increment invite access", zap.String("invite", link.ID), zap.Error(err))
	}
	return map[string]any{
		"targetGroupId": link.TargetGroupID,
		"role":          link.Role,
	}, nil
}
