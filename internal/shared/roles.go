package shared

// Roles recognised by the intelligence API.
const (
	RoleSalesRep = "sales_rep"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)
