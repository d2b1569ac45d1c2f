package model

import "testing"

func TestKnownPrivilege(t *testing.T) {
	for _, p := range AllPrivileges {
		if !KnownPrivilege(p.ID) {
			t.Errorf("KnownPrivilege(%d) = false, want true", p.ID)
		}
	}
	for _, id := range []int{0, 7, 999, -1} {
		if KnownPrivilege(id) {
			t.Errorf("KnownPrivilege(%d) = true, want false", id)
		}
	}
}

func TestDefaultPrivileges(t *testing.T) {
	want := map[int]bool{PrivilegeReadWriteFiles: true, PrivilegeReadOnlyAPI: true}
	if len(DefaultPrivileges) != len(want) {
		t.Fatalf("DefaultPrivileges = %v", DefaultPrivileges)
	}
	for _, id := range DefaultPrivileges {
		if !want[id] {
			t.Errorf("unexpected default privilege %d", id)
		}
	}
	// Defaults must agree with the catalog's default_enabled flags.
	for _, p := range AllPrivileges {
		if p.DefaultEnabled != want[p.ID] {
			t.Errorf("privilege %d default_enabled = %v, want %v", p.ID, p.DefaultEnabled, want[p.ID])
		}
	}
}

func TestPrivilegeSubset(t *testing.T) {
	cases := []struct {
		name  string
		sub   []int
		super []int
		want  bool
	}{
		{"empty subset", nil, []int{1, 2}, true},
		{"equal sets", []int{1, 2}, []int{1, 2}, true},
		{"proper subset", []int{1}, []int{1, 2}, true},
		{"not a subset", []int{3}, []int{1, 2}, false},
		{"empty superset", []int{1}, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PrivilegeSubset(tc.sub, tc.super); got != tc.want {
				t.Errorf("PrivilegeSubset(%v, %v) = %v, want %v", tc.sub, tc.super, got, tc.want)
			}
		})
	}
}
