package dto

import "github.com/jsamuelsen/tracecontext-service/internal/domain"

// LoginSuccessMessage is returned with every successful login.
const LoginSuccessMessage = "login success"

// LoginRequest is the body of POST /api/v1/users/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,notblank,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	UserID  int64  `json:"userId"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// NewLoginResponse converts a session to its response.
func NewLoginResponse(s *domain.Session) *LoginResponse {
	return &LoginResponse{
		UserID:  s.UserID,
		Token:   s.Token,
		Message: LoginSuccessMessage,
	}
}

// UserResponse is returned by GET /api/v1/users/:id. The password hash is
// never exposed.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// NewUserResponse converts a domain user to its response.
func NewUserResponse(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
}
