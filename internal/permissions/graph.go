// Package permissions models the nested-group access control used for
// documents and spaces. Every document is owned by a group; invite links and
// space membership attach further groups as parents of that owner group, and
// an account's effective role is the strongest role reachable through the
// chain.
package permissions

import (
	"sort"

	"github.com/ccssmnn/alkalye-sub002/internal/roles"
)

// GroupKind tells why a group exists. Resolution does not depend on it, but
// callers use it to present invite groups separately from direct members.
type GroupKind string

const (
	KindDocument GroupKind = "document"
	KindSpace    GroupKind = "space"
	KindInvite   GroupKind = "invite"
)

// Group is one node of the permission graph.
type Group struct {
	ID      string
	Kind    GroupKind
	Parents []string
	Members map[string]roles.Role
}

// Graph is an in-memory snapshot of the group graph, loaded per request from
// the store. It is not safe for concurrent mutation.
type Graph struct {
	groups map[string]*Group
}

func NewGraph() *Graph {
	return &Graph{groups: make(map[string]*Group)}
}

// AddGroup registers a group node. Re-adding an ID keeps existing members and
// parent edges.
func (g *Graph) AddGroup(id string, kind GroupKind) *Group {
	if existing, ok := g.groups[id]; ok {
		return existing
	}
	group := &Group{ID: id, Kind: kind, Members: make(map[string]roles.Role)}
	g.groups[id] = group
	return group
}

func (g *Graph) Group(id string) (*Group, bool) {
	group, ok := g.groups[id]
	return group, ok
}

// SetMember records an account's direct role in a group.
func (g *Graph) SetMember(groupID, accountID string, role roles.Role) {
	if group, ok := g.groups[groupID]; ok {
		group.Members[accountID] = role
	}
}

// RemoveMember drops an account's direct membership in a group.
func (g *Graph) RemoveMember(groupID, accountID string) {
	if group, ok := g.groups[groupID]; ok {
		delete(group.Members, accountID)
	}
}

// AddParent attaches parent as an access source of child. Duplicate edges are
// collapsed.
func (g *Graph) AddParent(childID, parentID string) {
	child, ok := g.groups[childID]
	if !ok {
		return
	}
	for _, existing := range child.Parents {
		if existing == parentID {
			return
		}
	}
	child.Parents = append(child.Parents, parentID)
}

// RemoveParent detaches parent from child. Accounts that reached child only
// through that parent lose access immediately; independent paths survive.
func (g *Graph) RemoveParent(childID, parentID string) {
	child, ok := g.groups[childID]
	if !ok {
		return
	}
	kept := child.Parents[:0]
	for _, existing := range child.Parents {
		if existing != parentID {
			kept = append(kept, existing)
		}
	}
	child.Parents = kept
}

// EffectiveRole resolves the strongest role accountID holds on the group,
// walking the group and all transitively reachable parents. The second
// return is false when no path grants any role.
func (g *Graph) EffectiveRole(accountID, groupID string) (roles.Role, bool) {
	best := roles.Role("")
	found := false

	visited := make(map[string]bool)
	queue := []string{groupID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		group, ok := g.groups[id]
		if !ok {
			continue
		}
		if role, member := group.Members[accountID]; member {
			if !found || roles.Stronger(role, best) {
				best = role
			}
			found = true
		}
		queue = append(queue, group.Parents...)
	}

	return best, found
}

// Collaborator is the resolved view of one account's access to a group:
// the effective role and, when access came only through an invite link, the
// invite group that granted it.
type Collaborator struct {
	AccountID     string
	Role          roles.Role
	InviteGroupID string
}

// Collaborators lists every account with access to the group, sorted by
// account ID for stable output. InviteGroupID is set only for accounts whose
// sole access path is a single invite group.
func (g *Graph) Collaborators(groupID string) []Collaborator {
	// Gather all groups reachable from groupID first, then resolve each
	// account once.
	reachable := g.reachable(groupID)

	accounts := make(map[string]struct{})
	for _, id := range reachable {
		if group, ok := g.groups[id]; ok {
			for accountID := range group.Members {
				accounts[accountID] = struct{}{}
			}
		}
	}

	out := make([]Collaborator, 0, len(accounts))
	for accountID := range accounts {
		role, ok := g.EffectiveRole(accountID, groupID)
		if !ok {
			continue
		}
		out = append(out, Collaborator{
			AccountID:     accountID,
			Role:          role,
			InviteGroupID: g.soleInvitePath(accountID, reachable),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

func (g *Graph) reachable(groupID string) []string {
	var order []string
	visited := make(map[string]bool)
	queue := []string{groupID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		group, ok := g.groups[id]
		if !ok {
			continue
		}
		order = append(order, id)
		queue = append(queue, group.Parents...)
	}
	return order
}

func (g *Graph) soleInvitePath(accountID string, reachable []string) string {
	inviteID := ""
	for _, id := range reachable {
		group, ok := g.groups[id]
		if !ok {
			continue
		}
		if _, member := group.Members[accountID]; !member {
			continue
		}
		if group.Kind != KindInvite {
			return ""
		}
		if inviteID != "" && inviteID != id {
			return ""
		}
		inviteID = id
	}
	return inviteID
}
