package identity

// Principal is the authenticated identity behind a request. It is
// produced once per request by the Resolver and never mutated.
type Principal struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	DepartmentID string `json:"department_id,omitempty"`
}
