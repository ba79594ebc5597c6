package domain

import "strconv"

// User is an account that can log in.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
}

// IDString formats the id for error messages and storage keys.
func (u *User) IDString() string {
	return strconv.FormatInt(u.ID, 10)
}

// Session is the result of a successful login.
type Session struct {
	UserID int64
	Token  string
}
