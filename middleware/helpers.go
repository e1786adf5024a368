package middleware

import (
	"fmt"

	"github.com/Dosada05/bracket-engine/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

func authFromClaims(claims jwt.MapClaims) (models.AuthContext, error) {
	userIDClaim, ok := claims[jwtClaimUserID]
	if !ok {
		return models.AuthContext{}, fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
	}
	userIDStr, ok := userIDClaim.(string)
	if !ok {
		return models.AuthContext{}, fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimUserID, userIDClaim)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil || userID == uuid.Nil {
		return models.AuthContext{}, fmt.Errorf("invalid user ID value in '%s' claim: %q", jwtClaimUserID, userIDStr)
	}

	roleClaim, ok := claims[jwtClaimRole]
	if !ok {
		return models.AuthContext{}, fmt.Errorf("missing '%s' claim in token", jwtClaimRole)
	}
	roleStr, ok := roleClaim.(string)
	if !ok {
		return models.AuthContext{}, fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimRole, roleClaim)
	}
	role := models.UserRole(roleStr)
	if !role.Valid() {
		return models.AuthContext{}, fmt.Errorf("invalid role value in claim: %q", roleStr)
	}

	return models.AuthContext{UserID: userID, Role: role}, nil
}
