package domain

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTutor   Role = "TUTOR"
	RoleAdmin   Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTutor, RoleAdmin:
		return true
	}

	return false
}

// Participant is the authenticated identity behind a connection or request.
type Participant struct {
	UserId    string  `json:"userId"`
	UserName  string  `json:"userName"`
	UserImage *string `json:"userImage,omitempty"`
	Role      Role    `json:"userRole"`
}
