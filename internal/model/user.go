package model

// Role is the account type of a principal.
type Role string

const (
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
	RoleTeacher Role = "teacher"
)

// Child is a dependent profile a parent (or a student, for themself) can view.
type Child struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Grade  string `json:"grade"`
	School string `json:"school"`
	Board  string `json:"board"`
}

// Profile is the normalized view of the authenticated principal.
// Children keeps the backend's key order; Fields passes through every
// backend attribute untouched.
type Profile struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	IsTeacher bool           `json:"is_teacher"`
	Children  []Child        `json:"children,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// IsParent reports whether the principal is a parent account.
func (p *Profile) IsParent() bool { return p != nil && p.Role == RoleParent }

// IsStudent reports whether the principal is a student account.
func (p *Profile) IsStudent() bool { return p != nil && p.Role == RoleStudent }

// Child returns the child with the given ID.
func (p *Profile) Child(id string) (Child, bool) {
	if p == nil {
		return Child{}, false
	}
	for _, c := range p.Children {
		if c.ID == id {
			return c, true
		}
	}
	return Child{}, false
}

// Credentials is the body of a password login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Token is the backend's login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Registration is the body of an account registration.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Grade    string `json:"grade,omitempty"`
	School   string `json:"school,omitempty"`
	Board    string `json:"board,omitempty"`
}

// Identity is an assertion obtained from an external identity provider.
type Identity struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

// FederatedLogin is the backend's reply to an identity assertion.
type FederatedLogin struct {
	Success bool           `json:"success"`
	Token   string         `json:"token"`
	User    map[string]any `json:"user"`
}
