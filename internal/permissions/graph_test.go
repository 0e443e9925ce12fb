package permissions

import (
	"testing"

	"github.com/ccssmnn/alkalye-sub002/internal/roles"
)

// chain builds the standard cascade: a document group owned by ada, inside a
// space whose group carries bo as writer, with an invite group on each level.
func chain() *Graph {
	g := NewGraph()
	g.AddGroup("doc-g", KindDocument)
	g.AddGroup("doc-invite", KindInvite)
	g.AddGroup("space-g", KindSpace)
	g.AddGroup("space-invite", KindInvite)

	g.SetMember("doc-g", "ada", roles.RoleAdmin)
	g.SetMember("space-g", "bo", roles.RoleWriter)
	g.SetMember("doc-invite", "cym", roles.RoleReader)
	g.SetMember("space-invite", "dee", roles.RoleWriter)

	g.AddParent("doc-g", "doc-invite")
	g.AddParent("doc-g", "space-g")
	g.AddParent("space-g", "space-invite")
	return g
}

func TestEffectiveRoleWalksFullChain(t *testing.T) {
	g := chain()

	cases := []struct {
		name    string
		account string
		want    roles.Role
		ok      bool
	}{
		{name: "direct document admin", account: "ada", want: roles.RoleAdmin, ok: true},
		{name: "space membership cascades to document", account: "bo", want: roles.RoleWriter, ok: true},
		{name: "document invite group", account: "cym", want: roles.RoleReader, ok: true},
		{name: "space invite group reaches document", account: "dee", want: roles.RoleWriter, ok: true},
		{name: "stranger has no role", account: "zed", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := g.EffectiveRole(tc.account, "doc-g")
			if ok != tc.ok {
				t.Fatalf("EffectiveRole ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("EffectiveRole = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEffectiveRoleTakesMaxAcrossPaths(t *testing.T) {
	g := chain()

	// bo is a space writer; a document-level reader invite must not narrow that.
	g.SetMember("doc-invite", "bo", roles.RoleReader)
	if got, _ := g.EffectiveRole("bo", "doc-g"); got != roles.RoleWriter {
		t.Fatalf("narrower document invite reduced role to %q", got)
	}

	// A wider document grant wins over the space role.
	g.SetMember("doc-g", "bo", roles.RoleManager)
	if got, _ := g.EffectiveRole("bo", "doc-g"); got != roles.RoleManager {
		t.Fatalf("wider document grant ignored, got %q", got)
	}
}

func TestAddingMembershipsIsMonotonic(t *testing.T) {
	g := chain()

	before, _ := g.EffectiveRole("cym", "doc-g")
	g.SetMember("space-g", "cym", roles.RoleWriter)
	after, ok := g.EffectiveRole("cym", "doc-g")
	if !ok {
		t.Fatal("account lost access after gaining a membership")
	}
	if roles.Stronger(before, after) {
		t.Fatalf("effective role decreased from %q to %q after adding a membership", before, after)
	}
}

func TestRevokeInviteRemovesDerivedAccessOnly(t *testing.T) {
	g := chain()

	// bo reaches the document both through the space and the document invite.
	g.SetMember("doc-invite", "bo", roles.RoleReader)

	g.RemoveParent("doc-g", "doc-invite")

	if _, ok := g.EffectiveRole("cym", "doc-g"); ok {
		t.Fatal("account reached only via the revoked invite kept access")
	}
	if got, ok := g.EffectiveRole("bo", "doc-g"); !ok || got != roles.RoleWriter {
		t.Fatalf("account with independent space path lost access: role=%q ok=%v", got, ok)
	}
}

func TestEffectiveRoleSurvivesParentCycles(t *testing.T) {
	g := NewGraph()
	g.AddGroup("a", KindDocument)
	g.AddGroup("b", KindInvite)
	g.SetMember("b", "ada", roles.RoleReader)
	g.AddParent("a", "b")
	g.AddParent("b", "a")

	if got, ok := g.EffectiveRole("ada", "a"); !ok || got != roles.RoleReader {
		t.Fatalf("cycle broke resolution: role=%q ok=%v", got, ok)
	}
}

func TestCollaborators(t *testing.T) {
	g := chain()

	collaborators := g.Collaborators("doc-g")
	if len(collaborators) != 4 {
		t.Fatalf("expected 4 collaborators, got %d: %+v", len(collaborators), collaborators)
	}

	byAccount := make(map[string]Collaborator, len(collaborators))
	for _, c := range collaborators {
		byAccount[c.AccountID] = c
	}

	if c := byAccount["cym"]; c.InviteGroupID != "doc-invite" {
		t.Fatalf("invite-only access should carry its invite group, got %q", c.InviteGroupID)
	}
	if c := byAccount["ada"]; c.InviteGroupID != "" {
		t.Fatalf("direct member should not carry an invite group, got %q", c.InviteGroupID)
	}
	if c := byAccount["dee"]; c.Role != roles.RoleWriter || c.InviteGroupID != "space-invite" {
		t.Fatalf("space invite collaborator resolved wrong: %+v", c)
	}

	for i := 1; i < len(collaborators); i++ {
		if collaborators[i-1].AccountID > collaborators[i].AccountID {
			t.Fatal("collaborators not sorted by account ID")
		}
	}
}
