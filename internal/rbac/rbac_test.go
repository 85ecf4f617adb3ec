package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer edit", role: RoleViewer, action: ActionEdit, allow: false},
		{name: "viewer upload", role: RoleViewer, action: ActionUpload, allow: false},
		{name: "editor edit", role: RoleEditor, action: ActionEdit, allow: true},
		{name: "editor upload", role: RoleEditor, action: ActionUpload, allow: true},
		{name: "editor publish", role: RoleEditor, action: ActionPublish, allow: false},
		{name: "publisher publish", role: RolePublisher, action: ActionPublish, allow: true},
		{name: "publisher admin", role: RolePublisher, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown read", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("publisher"); got != RolePublisher {
		t.Fatalf("Normalize(publisher) = %q", got)
	}
	if got := Normalize("owner"); got != RoleViewer {
		t.Fatalf("Normalize(owner) = %q, want viewer", got)
	}
}
