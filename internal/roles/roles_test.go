package roles

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "reader read", role: RoleReader, action: ActionRead, allow: true},
		{name: "reader write", role: RoleReader, action: ActionWrite, allow: false},
		{name: "writer write", role: RoleWriter, action: ActionWrite, allow: true},
		{name: "writer manage", role: RoleWriter, action: ActionManage, allow: false},
		{name: "manager manage", role: RoleManager, action: ActionManage, allow: true},
		{name: "manager admin", role: RoleManager, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown read", role: Role("owner"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestMaxTotalOrder(t *testing.T) {
	ordered := []Role{RoleReader, RoleWriter, RoleManager, RoleAdmin}
	for i, lo := range ordered {
		for _, hi := range ordered[i:] {
			if got := Max(lo, hi); got != hi {
				t.Fatalf("Max(%q, %q) = %q, want %q", lo, hi, got, hi)
			}
			if got := Max(hi, lo); got != hi {
				t.Fatalf("Max(%q, %q) = %q, want %q", hi, lo, got, hi)
			}
		}
	}
	if got := Max(RoleWriter, RoleWriter); got != RoleWriter {
		t.Fatalf("Max is not idempotent: got %q", got)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("manager"); got != RoleManager {
		t.Fatalf("Normalize(manager) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleReader {
		t.Fatalf("Normalize(superuser) = %q, want reader", got)
	}
}
