package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/aegis/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOperatorDisabled   = errors.New("operator account disabled")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidRole        = errors.New("invalid role")
)

// Roles an operator account may hold. Assistants may only suggest actions.
var validRoles = map[string]bool{"admin": true, "operator": true, "viewer": true, "assistant": true}

// Claims are the JWT claims issued to operators.
type Claims struct {
	OperatorID uint   `json:"oid"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService authenticates operators and issues signed tokens.
type AuthService struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthService returns an AuthService signing with secret.
func NewAuthService(db *gorm.DB, secret string, ttl time.Duration) *AuthService {
	return &AuthService{db: db, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// CreateOperator registers a new operator account.
func (s *AuthService) CreateOperator(email, name, password, role string) (*models.Operator, error) {
	if !validRoles[role] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	op := &models.Operator{
		UUID:    uuid.NewString(),
		Email:   strings.ToLower(strings.TrimSpace(email)),
		Name:    name,
		Role:    role,
		Enabled: true,
	}
	if err := op.SetPassword(password); err != nil {
		return nil, err
	}
	if err := s.db.Create(op).Error; err != nil {
		return nil, fmt.Errorf("create operator: %w", err)
	}
	return op, nil
}

// ResetPassword replaces the password of the operator with email.
func (s *AuthService) ResetPassword(email, password string) error {
	var op models.Operator
	if err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&op).Error; err != nil {
		return fmt.Errorf("operator not found: %w", err)
	}
	if err := op.SetPassword(password); err != nil {
		return err
	}
	return s.db.Save(&op).Error
}

// Login verifies credentials and returns a signed token.
func (s *AuthService) Login(email, password string) (string, error) {
	var op models.Operator
	if err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&op).Error; err != nil {
		return "", ErrInvalidCredentials
	}
	if !op.CheckPassword(password) {
		return "", ErrInvalidCredentials
	}
	if !op.Enabled {
		return "", ErrOperatorDisabled
	}

	now := s.now()
	op.LastLogin = &now
	s.db.Model(&op).Update("last_login", now)

	return s.GenerateToken(&op)
}

// GenerateToken signs a token for op.
func (s *AuthService) GenerateToken(op *models.Operator) (string, error) {
	now := s.now()
	claims := Claims{
		OperatorID: op.ID,
		Email:      op.Email,
		Role:       op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.UUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken parses and verifies a token.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
