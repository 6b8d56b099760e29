package model

import "time"

// User is a learner account.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile holds learner preferences. It is created by an explicit step of the
// registration workflow, never by an implicit persistence hook, so the
// dependency stays visible and testable.
type Profile struct {
	UserID         int    `json:"user_id"`
	DisplayName    string `json:"display_name"`
	TargetHSKLevel int    `json:"target_hsk_level"`
}

// Admin is a staff account managing the exam catalog.
type Admin struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// RegisterRequest is the payload for creating a new user account.
type RegisterRequest struct {
	Username       string `json:"username" binding:"required,min=3,max=50"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8,max=72"`
	DisplayName    string `json:"display_name" binding:"omitempty,max=100"`
	TargetHSKLevel int    `json:"target_hsk_level" binding:"omitempty,min=1,max=6"`
}

// LoginRequest is the payload for user and admin logins.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}
