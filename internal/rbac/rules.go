package rbac

const (
	RoleAdmin   = "admin"
	RoleStaff   = "staff"
	RoleStudent = "student"
)

// Roles lists the known roles, most privileged first.
var Roles = []string{RoleAdmin, RoleStaff, RoleStudent}

func ValidRole(r string) bool {
	_, ok := RolePermissions[r]
	return ok
}

var RolePermissions = map[string][]string{
	RoleStudent: {
		"exam:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"media:view",
		"user:change_password",
	},
	RoleStaff: {
		"question:*",
		"exam:*",
		"attempt:view-all",
		"stats:view",
		"users:list",
		"users:bulk_upsert",
		"notify:*",
		"media:*",
		"user:change_password",
	},
	RoleAdmin: {
		"*",
	},
}
