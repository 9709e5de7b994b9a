package access

import "time"

// GroupLevel classifies a group's standing in the authorization model
type GroupLevel int

const (
	// LevelRoot bypasses all fine-grained permission checks
	LevelRoot GroupLevel = 1
	// LevelGuest is the default landing group for new users
	LevelGuest GroupLevel = 2
	// LevelUser is an ordinary permission-gated group
	LevelUser GroupLevel = 3
)

func (l GroupLevel) String() string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelGuest:
		return "guest"
	case LevelUser:
		return "user"
	default:
		return "unknown"
	}
}

// MountStatus marks whether a permission is declared by a live route
type MountStatus int

const (
	// Unmounted means no live route declares this permission anymore.
	// The row is retired, never deleted, so log references stay valid.
	Unmounted MountStatus = 0
	// Mounted means the permission is declared and assignable
	Mounted MountStatus = 1
)

// Group is a named set of users sharing permission grants
type Group struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Info       string     `json:"info,omitempty"`
	Level      GroupLevel `json:"level"`
	CreateTime time.Time  `json:"create_time"`
	UpdateTime time.Time  `json:"update_time"`
	DeleteTime *time.Time `json:"-"`
}

// IsProtected reports whether the group may never be deleted
func (g *Group) IsProtected() bool {
	return g.Level == LevelRoot || g.Level == LevelGuest
}

// Permission is a named capability scoped to a module. Rows are created only
// by the Synchronizer; admins can grant them but never invent them.
type Permission struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Module     string      `json:"module"`
	Mount      MountStatus `json:"mount"`
	CreateTime time.Time   `json:"create_time"`
	UpdateTime time.Time   `json:"update_time"`
	DeleteTime *time.Time  `json:"-"`
}

// GroupPermission grants one permission to one group
type GroupPermission struct {
	ID           int64 `json:"id"`
	GroupID      int64 `json:"group_id"`
	PermissionID int64 `json:"permission_id"`
}

// UserGroup places one user into one group
type UserGroup struct {
	ID      int64 `json:"id"`
	UserID  int64 `json:"user_id"`
	GroupID int64 `json:"group_id"`
}

// GroupWithPermissions is a group together with its mounted grants
type GroupWithPermissions struct {
	Group
	Permissions []Permission `json:"permissions"`
}
