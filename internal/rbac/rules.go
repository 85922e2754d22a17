package rbac

// Default policy. Users who have not picked a role yet ("none") can only
// manage their own account.
var RolePermissions = map[string][]string{
	"none": {
		"user:view-self",
		"user:set_role",
		"user:change_password",
	},
	"student": {
		"test:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"user:view-self",
		"user:set_role",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
