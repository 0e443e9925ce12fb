// Package roles defines the role lattice shared by groups, spaces, and
// documents. Precedence, lowest to highest: reader < writer < manager < admin.
package roles

type Role string
type Action string

const (
	RoleReader  Role = "reader"
	RoleWriter  Role = "writer"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionManage Action = "manage"
	ActionAdmin  Action = "admin"
)

var precedence = map[Role]int{
	RoleReader:  1,
	RoleWriter:  2,
	RoleManager: 3,
	RoleAdmin:   4,
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action == ActionRead || action == ActionWrite || action == ActionManage
	case RoleWriter:
		return action == ActionRead || action == ActionWrite
	case RoleReader:
		return action == ActionRead
	default:
		return false
	}
}

// Stronger reports whether a carries more privilege than b. Unknown roles
// rank below reader.
func Stronger(a, b Role) bool {
	return precedence[a] > precedence[b]
}

// Max returns the higher-privilege of the two roles.
func Max(a, b Role) Role {
	if Stronger(b, a) {
		return b
	}
	return a
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleReader, RoleWriter, RoleManager, RoleAdmin:
		return Role(role)
	default:
		return RoleReader
	}
}

// Valid reports whether the string names a known role.
func Valid(role string) bool {
	_, ok := precedence[Role(role)]
	return ok
}
