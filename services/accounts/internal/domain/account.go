package domain

import (
	"time"

	"github.com/diagnosis/staybook/internal/utils"
	"github.com/diagnosis/staybook/pkg/auth"
)

const (
	// DefaultPhoto is assigned to new members until they upload their own.
	DefaultPhoto = "guest.jpg"
	// AdminPhoto is the mail image for administrators, who carry no photo.
	AdminPhoto = "admin.jpg"
	// PhotoFolder is the storage folder for profile photos.
	PhotoFolder = "profile"
)

// Account is either an administrator or a member; Role is the tag. Only
// members carry a Photo.
type Account struct {
	ID                int64      `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Name              string     `json:"name"`
	Role              auth.Role  `json:"role"`
	Active            bool       `json:"active"`
	LoginAttemptCount int        `json:"-"`
	LastFailedLoginAt *time.Time `json:"-"`
	Photo             string     `json:"photo,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (a *Account) IsMember() bool { return a.Role == auth.RoleMember }

// MailPhoto is the inline image used in notification emails.
func (a *Account) MailPhoto() string {
	if a.IsMember() && a.Photo != "" {
		return a.Photo
	}
	return AdminPhoto
}

type TokenPurpose string

const (
	PurposeReset      TokenPurpose = "reset"
	PurposeReactivate TokenPurpose = "reactivate"
)

// RecoveryToken is a one-time secret that reactivates an account and sets a
// new password.
type RecoveryToken struct {
	ID          string
	AccountID   int64
	Purpose     TokenPurpose
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

func (t *RecoveryToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=100"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Captcha  string `json:"captcha"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
	r.Name = utils.NormalizeString(r.Name)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Captcha  string `json:"captcha"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	Role        auth.Role `json:"role"`
	ExpiresIn   int64     `json:"expires_in"`
}

type PasswordResetRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Captcha string `json:"captcha"`
}

type RedeemRequest struct {
	Token       string `json:"token" validate:"required,max=100"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
	Captcha     string `json:"captcha"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// UpdateProfileRequest changes the display name and, for members, swaps in a
// photo previously staged under PhotoKey.
type UpdateProfileRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	PhotoKey string `json:"photo_key,omitempty"`
}

type AddAdminRequest struct {
	Email    string `json:"email" validate:"required,email,max=100"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (r *AddAdminRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
	r.Name = utils.NormalizeString(r.Name)
}
