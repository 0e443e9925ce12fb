package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/ccssmnn/alkalye-sub002/internal/roles"
	"github.com/ccssmnn/alkalye-sub002/internal/search"
	"github.com/ccssmnn/alkalye-sub002/internal/store"
	"github.com/ccssmnn/alkalye-sub002/internal/util"
)

func spacePayload(space store.Space) map[string]any {
	return map[string]any{
		"id":          space.ID,
		"name":        space.Name,
		"description": space.Description,
		"groupId":     space.GroupID,
		"createdBy":   space.CreatedBy,
		"createdAt":   space.CreatedAt,
		"updatedAt":   space.UpdatedAt,
	}
}

func (s *Service) CreateSpace(ctx context.Context, session Session, name, description string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation("name is required")
	}

	groupID := util.NewID("grp")
	spaceID := util.NewID("spc")
	if err := s.store.InsertGroup(ctx, store.Group{ID: groupID, Kind: "space", ResourceID: spaceID}); err != nil {
		return nil, err
	}
	if err := s.store.UpsertGroupMember(ctx, groupID, session.AccountID, string(roles.RoleAdmin)); err != nil {
		return nil, err
	}

	space := store.Space{
		ID:          spaceID,
		Name:        name,
		Description: description,
		GroupID:     groupID,
		CreatedBy:   session.AccountID,
	}
	if err := s.store.InsertSpace(ctx, space); err != nil {
		return nil, err
	}

	s.search.IndexSpace(search.SpaceRecord{ID: spaceID, Name: name, Description: description})
	return spacePayload(space), nil
}

func (s *Service) ListSpaces(ctx context.Context, session Session) ([]map[string]any, error) {
	spaces, err := s.store.ListSpacesForAccount(ctx, session.AccountID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(spaces))
	for _, space := range spaces {
		items = append(items, spacePayload(space))
	}
	return items, nil
}

func (s *Service) GetSpace(ctx context.Context, session Session, spaceID string) (map[string]any, error) {
	space, role, err := s.requireSpace(ctx, session, spaceID, roles.ActionRead)
	if err != nil {
		return nil, err
	}
	payload := spacePayload(space)
	payload["role"] = role
	return payload, nil
}

func (s *Service) UpdateSpace(ctx context.Context, session Session, spaceID, name, description string) (map[string]any, error) {
	space, _, err := s.requireSpace(ctx, session, spaceID, roles.ActionManage)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation("name is required")
	}
	if err := s.store.UpdateSpace(ctx, spaceID, name, description); err != nil {
		return nil, err
	}
	space.Name = name
	space.Description = description

	s.search.IndexSpace(search.SpaceRecord{ID: spaceID, Name: name, Description: description})
	return spacePayload(space), nil
}

func (s *Service) DeleteSpace(ctx context.Context, session Session, spaceID string) error {
	_, _, err := s.requireSpace(ctx, session, spaceID, roles.ActionAdmin)
	if err != nil {
		return err
	}
	docs, err := s.store.ListDocumentsBySpace(ctx, spaceID)
	if err != nil {
		return err
	}
	if len(docs) > 0 {
		return domainError(http.StatusConflict, "SPACE_NOT_EMPTY", "space still contains documents", map[string]any{"documentCount": len(docs)})
	}
	if err := s.store.DeleteSpace(ctx, spaceID); err != nil {
		return err
	}
	s.search.DeleteSpace(spaceID)
	return nil
}

func (s *Service) ListSpaceMembers(ctx context.Context, session Session, spaceID string) (map[string]any, error) {
	space, _, err := s.requireSpace(ctx, session, spaceID, roles.ActionRead)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListGroupMembers(ctx, space.GroupID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, map[string]any{
			"accountId":   member.AccountID,
			"displayName": member.DisplayName,
			"email":       member.Email,
			"role":        member.Role,
			"addedAt":     member.AddedAt,
		})
	}
	return map[string]any{"members": items}, nil
}

// SetSpaceMemberRole grants or changes a member role on the space group. The
// grant cascades to every document in the space through the parent edge.
func (s *Service) SetSpaceMemberRole(ctx context.Context, session Session, spaceID, accountID, role string) (map[string]any, error) {
	space, callerRole, err := s.requireSpace(ctx, session, spaceID, roles.ActionManage)
	if err != nil {
		return nil, err
	}
	if !roles.Valid(role) {
		return nil, validation("role must be one of reader, writer, manager, admin")
	}
	if roles.Role(role) == roles.RoleAdmin && callerRole != roles.RoleAdmin {
		return nil, forbidden("only admins can grant the admin role")
	}
	if err := s.store.UpsertGroupMember(ctx, space.GroupID, accountID, role); err != nil {
		return nil, err
	}
	return map[string]any{"accountId": accountID, "role": role}, nil
}

func (s *Service) RemoveSpaceMember(ctx context.Context, session Session, spaceID, accountID string) error {
	space, _, err := s.requireSpace(ctx, session, spaceID, roles.ActionManage)
	if err != nil {
		return err
	}
	return s.store.RemoveGroupMember(ctx, space.GroupID, accountID)
}
