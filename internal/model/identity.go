package model

import "time"

// Roles a user can hold.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a stored identity.
type User struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	APIKey       string    `json:"api_key,omitempty"`
	PasswordHash string    `json:"-"`
	LastModified time.Time `json:"last_modified"`
}

// Identity returns the request identity for u.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Admin: u.Role == RoleAdmin}
}

// Identity is the caller bound to a request.
type Identity struct {
	ID    string
	Admin bool
}

// SystemIdentity is used by internal writers such as the ingest consumer.
var SystemIdentity = Identity{ID: "system", Admin: true}

// Capabilities is the set of operations a grant allows.
type Capabilities struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Create bool `json:"create"`
}

// FullCapabilities is what an administrator resolves to.
var FullCapabilities = Capabilities{Read: true, Write: true, Create: true}

// Union returns the capabilities allowed by either c or o.
func (c Capabilities) Union(o Capabilities) Capabilities {
	return Capabilities{Read: c.Read || o.Read, Write: c.Write || o.Write, Create: c.Create || o.Create}
}

// IsEmpty reports whether no capability is set.
func (c Capabilities) IsEmpty() bool { return !c.Read && !c.Write && !c.Create }

// GrantKey identifies a grant. TypeScope is empty for type-level grants and
// holds the type id for object-level grants.
type GrantKey struct {
	ResourceID string `json:"id"`
	TypeScope  string `json:"type,omitempty"`
	Owner      string `json:"owner"`
}

// Grant is a stored permission.
type Grant struct {
	GrantKey
	Capabilities
	LastModified time.Time `json:"last_modified"`
}

// TypeID returns the type the grant applies to.
func (g *Grant) TypeID() string {
	if g.TypeScope != "" {
		return g.TypeScope
	}
	return g.ResourceID
}
