// Package testutil provides principals and bearer tokens shared by package
// tests.
package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/middleware"
)

// Admin returns an admin principal.
func Admin(userID string) *profile.Principal {
	return &profile.Principal{UserID: userID, Email: userID + "@example.com", Role: profile.RoleAdmin}
}

// Store returns a store principal whose store id is its user id.
func Store(userID string) *profile.Principal {
	return &profile.Principal{UserID: userID, Email: userID + "@example.com", Role: profile.RoleStore}
}

// Customer returns a customer principal.
func Customer(userID string) *profile.Principal {
	return &profile.Principal{UserID: userID, Email: userID + "@example.com", Role: profile.RoleCustomer}
}

// SignToken mints an HS256 access token for userID that expires after ttl.
func SignToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	claims := &middleware.Claims{
		Email: userID + "@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
