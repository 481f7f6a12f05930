package rbac

// Default policy. Teachers author and grade; students sit attempts and see
// their own results.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:create",
		"attempt:answer",
		"attempt:submit",
		"attempt:view-own",
	},
	"teacher": {
		"quiz:author",
		"quiz:publish",
		"quiz:view",
		"attempt:grade",
		"attempt:view-all",
	},
	"admin": {
		"*", // everything
	},
}
