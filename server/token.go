package server

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// A TokenDecoder maps the API key sent with a request to a user and a Role.
// Unknown keys decode to the user "" with RoleUnknown. An error means the
// lookup itself failed and the key's status could not be determined.
type TokenDecoder interface {
	TokenDecode(token string) (user string, role Role, err error)
}

// Role orders the kinds of access a key may grant. Each role includes the
// access of every role below it.
type Role int

const (
	RoleUnknown Role = iota
	RoleMDOnly       // item info only
	RoleRead         // item content
	RoleWrite        // add, update, delete
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleUnknown: "unknown",
	RoleMDOnly:  "mdonly",
	RoleRead:    "read",
	RoleWrite:   "write",
	RoleAdmin:   "admin",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

func atoRole(s string) Role {
	s = strings.ToLower(s)
	for r, name := range roleNames {
		if name == s {
			return r
		}
	}
	return RoleUnknown
}

// NewNobodyDecoder returns a TokenDecoder that grants every token, including
// the empty one, the Admin role as the user "nobody".
func NewNobodyDecoder() TokenDecoder {
	return nobodyDecoder{}
}

type nobodyDecoder struct{}

func (nobodyDecoder) TokenDecode(token string) (string, Role, error) {
	return "nobody", RoleAdmin, nil
}

// NewListDecoder reads a fixed set of keys from r. Each line has the form
//
//	<user name>  <role>  <token>
//
// separated by spaces or tabs. The role is one of "MDOnly", "Read", "Write",
// or "Admin", in any case. Blank lines and lines starting with '#' are
// skipped. A line with the wrong number of fields is an error, as is a token
// given twice.
func NewListDecoder(r io.Reader) (TokenDecoder, error) {
	ld := listDecoder{}
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		pieces := strings.Fields(scanner.Text())
		if len(pieces) == 0 || strings.HasPrefix(pieces[0], "#") {
			continue
		}
		if len(pieces) != 3 {
			return nil, errors.Errorf("token list line %d: expected 3 fields, got %d", lineno, len(pieces))
		}
		if _, dup := ld[pieces[2]]; dup {
			return nil, errors.Errorf("token list line %d: duplicate token", lineno)
		}
		ld[pieces[2]] = userEntry{user: pieces[0], role: atoRole(pieces[1])}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading token list")
	}
	return ld, nil
}

// NewListDecoderFile loads a ListDecoder from the named file.
func NewListDecoderFile(fname string) (TokenDecoder, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrap(err, "opening token list")
	}
	defer f.Close()
	return NewListDecoder(f)
}

// NewListDecoderString loads a ListDecoder from a string.
func NewListDecoderString(data string) (TokenDecoder, error) {
	return NewListDecoder(strings.NewReader(data))
}

type userEntry struct {
	user string
	role Role
}

// listDecoder is keyed by token.
type listDecoder map[string]userEntry

func (ld listDecoder) TokenDecode(token string) (string, Role, error) {
	if token == "" {
		return "", RoleUnknown, nil
	}
	if u, ok := ld[token]; ok {
		return u.user, u.role, nil
	}
	return "", RoleUnknown, nil
}
