package profile

// UpdateRequest is the body of PUT /profile. Empty fields are left alone.
type UpdateRequest struct {
	Name       string `json:"name" validate:"omitempty,min=2,max=100"`
	City       string `json:"city" validate:"omitempty,min=2,max=100"`
	Occupation string `json:"occupation" validate:"omitempty,min=2,max=100"`
	Gender     string `json:"gender" validate:"gender"`
}
