package auth

const (
	loginEndpoint  = "/auth/login"
	logoutEndpoint = "/auth/logout"
	demoEndpoint   = "/auth/demo"
)

// DefaultDemoRole is granted when the caller does not ask for one
const DefaultDemoRole = "student"

type demoRequest struct {
	Role string `json:"role"`
}
