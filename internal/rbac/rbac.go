package rbac

type Role string
type Action string

const (
	RoleViewer    Role = "viewer"
	RoleEditor    Role = "editor"
	RolePublisher Role = "publisher"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionEdit    Action = "edit"
	ActionUpload  Action = "upload"
	ActionPublish Action = "publish"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RolePublisher:
		return action == ActionRead || action == ActionEdit || action == ActionUpload || action == ActionPublish
	case RoleEditor:
		return action == ActionRead || action == ActionEdit || action == ActionUpload
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RolePublisher, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
