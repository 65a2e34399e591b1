package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/campusdesk/desk/internal/types"
)

// Claims is the decoded, unverified payload of an access token.
type Claims map[string]any

// Lookup order for each identity field. The first claim present wins.
var (
	idClaims         = []string{"userId", "id", "sub"}
	nameClaims       = []string{"name", "username", "email"}
	emailClaims      = []string{"email"}
	studentNumClaims = []string{"studentNum", "student_num"}
)

// DecodeClaims reads the payload of a JWT without verifying its signature;
// verification belongs to the server.
func DecodeClaims(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return Claims(claims), nil
}

// Identity maps claims onto an Identity. Nil claims give the anonymous identity.
func (c Claims) Identity() types.Identity {
	if len(c) == 0 {
		return types.Identity{}
	}
	return types.Identity{
		ID:         c.first(idClaims),
		Name:       c.first(nameClaims),
		Email:      c.first(emailClaims),
		StudentNum: c.first(studentNumClaims),
		IsAdmin:    c.admin(),
	}
}

// IdentityFromToken decodes token, treating any failure as anonymous.
func IdentityFromToken(token string) types.Identity {
	claims, err := DecodeClaims(token)
	if err != nil {
		return types.Identity{}
	}
	return claims.Identity()
}

func (c Claims) first(keys []string) string {
	for _, key := range keys {
		if value, ok := stringClaim(c[key]); ok {
			return value
		}
	}
	return ""
}

// admin is true when role is ADMIN, roles contains ADMIN, or isAdmin is set.
func (c Claims) admin() bool {
	if role, ok := c["role"].(string); ok && role == "ADMIN" {
		return true
	}
	switch roles := c["roles"].(type) {
	case []any:
		for _, role := range roles {
			if s, ok := role.(string); ok && s == "ADMIN" {
				return true
			}
		}
	case []string:
		for _, role := range roles {
			if role == "ADMIN" {
				return true
			}
		}
	}
	return truthy(c["isAdmin"])
}

// truthy accepts true, "true" and 1.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	case float64:
		return v == 1
	case int:
		return v == 1
	}
	return false
}

func stringClaim(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	}
	return "", false
}
