package server

import (
	"testing"
)

func TestAtoRole(t *testing.T) {
	var table = []struct {
		input  string
		output Role
	}{
		{"MDOnly", RoleMDOnly},
		{"mdonly", RoleMDOnly},
		{"Read", RoleRead},
		{"WRITE", RoleWrite},
		{"admin", RoleAdmin},
		{"other", RoleUnknown},
		{"", RoleUnknown},
	}

	for _, row := range table {
		result := atoRole(row.input)
		if result != row.output {
			t.Errorf("For %v received %v, expected %v", row.input, result, row.output)
		}
	}
}

func TestListDecoder(t *testing.T) {
	const list = `
# comment line
alice  Admin   a1b2c3
bob    read    zzz
	carol	MDOnly	ccc
`
	d, err := NewListDecoderString(list)
	if err != nil {
		t.Fatal(err)
	}
	var table = []struct {
		token string
		user  string
		role  Role
	}{
		{"a1b2c3", "alice", RoleAdmin},
		{"zzz", "bob", RoleRead},
		{"ccc", "carol", RoleMDOnly},
		{"", "", RoleUnknown},
		{"nope", "", RoleUnknown},
	}
	for _, row := range table {
		user, role, err := d.TokenDecode(row.token)
		if err != nil || user != row.user || role != row.role {
			t.Errorf("For %q Got %s, %v, %v, expected %s, %v", row.token, user, role, err, row.user, row.role)
		}
	}
}

func TestListDecoderErrors(t *testing.T) {
	for _, list := range []string{
		"alice admin",
		"alice admin t1\nbob read t1",
		"alice admin t1 extra",
	} {
		if _, err := NewListDecoderString(list); err == nil {
			t.Errorf("For %q Got no error", list)
		}
	}
}

func TestNobodyDecoder(t *testing.T) {
	user, role, _ := NewNobodyDecoder().TokenDecode("")
	if user != "nobody" || role != RoleAdmin {
		t.Errorf("Got %s, %v, expected nobody, admin", user, role)
	}
}
