package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AllTables grants read access to every table and to raw locations
const AllTables = "*"

// JWTManager manages JWT tokens
type JWTManager struct {
	secretKey     string
	issuer        string
	tokenDuration time.Duration
}

// Claims represents the JWT claims
type Claims struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Tables   []string `json:"tables"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWTManager
func NewJWTManager(secretKey, issuer string, tokenDuration time.Duration) *JWTManager {
	if issuer == "" {
		issuer = "deltaframe"
	}
	return &JWTManager{
		secretKey:     secretKey,
		issuer:        issuer,
		tokenDuration: tokenDuration,
	}
}

// GenerateToken generates a new JWT token readable for the given tables
func (j *JWTManager) GenerateToken(userID, username string, roles, tables []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Roles:    roles,
		Tables:   tables,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.secretKey), nil
	}, jwt.WithIssuer(j.issuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// ExtractTokenFromHeader extracts JWT token from Authorization header
func (j *JWTManager) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is required")
	}

	// Check if header starts with "Bearer "
	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) || authHeader[:len(bearerPrefix)] != bearerPrefix {
		return "", fmt.Errorf("authorization header must start with 'Bearer '")
	}

	return authHeader[len(bearerPrefix):], nil
}

// HasRole checks if the user has the specified role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanReadTable reports whether the token grants access to the catalog table
func (c *Claims) CanReadTable(name string) bool {
	for _, t := range c.Tables {
		if t == AllTables || t == name {
			return true
		}
	}
	return false
}

// CanReadLocations reports whether the token may resolve raw locations
// that are not registered in the catalog
func (c *Claims) CanReadLocations() bool {
	for _, t := range c.Tables {
		if t == AllTables {
			return true
		}
	}
	return false
}
