// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package httpapi

import (
	"time"

	"github.com/roito2356/giiku-23/internal/auth"
)

type registerRequest struct {
	Email                string `json:"email"`
	Username             string `json:"username"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateRequest struct {
	Email                *string `json:"email"`
	Username             *string `json:"username"`
	Password             *string `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

type completionRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role.String(),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type loginResponse struct {
	User      userResponse `json:"user"`
	Landing   string       `json:"landing"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type userPageResponse struct {
	Items      []userResponse `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

func newUserPageResponse(p auth.Page[*auth.User]) userPageResponse {
	items := make([]userResponse, 0, len(p.Items))
	for _, u := range p.Items {
		items = append(items, newUserResponse(u))
	}
	return userPageResponse{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages(),
	}
}

type completionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func newCompletionResponse(c *auth.Completion) completionResponse {
	return completionResponse{
		ID:        c.ID.String(),
		UserID:    c.UserID.String(),
		Rating:    c.Rating,
		Comment:   c.Comment,
		CreatedAt: c.CreatedAt,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
