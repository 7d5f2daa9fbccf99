package dto

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type EmployeeResponse struct {
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

type AuthResponse struct {
	AccessToken string           `json:"accessToken"`
	ExpiresAt   int64            `json:"expiresAt"`
	Employee    EmployeeResponse `json:"employee"`
}
