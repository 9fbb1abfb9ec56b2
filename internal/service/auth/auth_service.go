package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"resale/internal/model"
	"resale/internal/repository"
	"resale/internal/session"
	"resale/internal/utils"
	"resale/pkg/log"
	pkgutils "resale/pkg/utils"
)

// hashCost bcrypt cost for new password hashes
var hashCost = bcrypt.DefaultCost

// RegisterRequest register request. Password plus salt must fit bcrypt's 72 bytes.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Phone    string `json:"phone" binding:"omitempty,phone"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=8,max=40"`
	Nickname string `json:"nickname" binding:"omitempty,max=50"`
}

// LoginRequest login request
type LoginRequest struct {
	Account  string `json:"account" binding:"required"` // username/phone/email
	Password string `json:"password" binding:"required"`
}

// RefreshRequest refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ChangePasswordRequest change password request
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=40"`
}

// TokenResponse token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ClientInfo describes where a login came from
type ClientInfo struct {
	IP        string
	UserAgent string
}

// LoginPolicy lockout after repeated failures
type LoginPolicy struct {
	MaxAttempts int
	LockFor     time.Duration
}

// AuthService authentication service interface
type AuthService interface {
	// Register user
	Register(ctx context.Context, req *RegisterRequest) (*model.User, error)

	// Login user and open a session
	Login(ctx context.Context, req *LoginRequest, client ClientInfo) (*TokenResponse, error)

	// Logout ends the session
	Logout(ctx context.Context, sessionID string) error

	// Refresh rotates the refresh token of a live session
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// ChangePassword changes the password and ends every other session
	ChangePassword(ctx context.Context, userID uint64, sessionID string, req *ChangePasswordRequest) error

	// Profile returns the account
	Profile(ctx context.Context, userID uint64) (*model.User, error)

	// ValidateToken validates an access token against its session
	ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error)
}

// authService authentication service implementation
type authService struct {
	userRepo   repository.UserRepository
	sessions   session.Store
	jwtManager *utils.JWTManager
	redis      redis.UniversalClient
	policy     LoginPolicy
}

// NewAuthService creates an authentication service
func NewAuthService(
	userRepo repository.UserRepository,
	sessions session.Store,
	jwtManager *utils.JWTManager,
	redis redis.UniversalClient,
	policy LoginPolicy,
) AuthService {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.LockFor <= 0 {
		policy.LockFor = 30 * time.Minute
	}
	return &authService{
		userRepo:   userRepo,
		sessions:   sessions,
		jwtManager: jwtManager,
		redis:      redis,
		policy:     policy,
	}
}

var (
	errBadCredentials = pkgutils.NewError(pkgutils.CodeUnauthorized, "username or password incorrect")
	errSessionExpired = pkgutils.NewError(pkgutils.CodeUnauthorized, "session expired")
)

// Register registers a user
func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	logger := log.WithContext(ctx).WithField("username", req.Username)
	logger.Info("user register")

	// 1. Check uniqueness
	checks := []struct {
		value string
		exist func(context.Context, string) (bool, error)
		msg   string
	}{
		{req.Username, s.userRepo.ExistsByUsername, "username already exists"},
		{req.Phone, s.userRepo.ExistsByPhone, "phone already registered"},
		{req.Email, s.userRepo.ExistsByEmail, "email already registered"},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		exists, err := c.exist(ctx, c.value)
		if err != nil {
			return nil, pkgutils.WrapError(err, pkgutils.CodeInternalError, "system error")
		}
		if exists {
			return nil, pkgutils.NewError(pkgutils.CodeConflict, c.msg)
		}
	}

	// 2. Salt and hash
	salt, err := pkgutils.GenerateSalt()
	if err != nil {
		return nil, pkgutils.WrapError(err, pkgutils.CodeInternalError, "system error")
	}
	passwordHash, err := hashPassword(req.Password + salt)
	if err != nil {
		return nil, pkgutils.WrapError(err, pkgutils.CodeInternalError, "system error")
	}

	// 3. Create user
	user := &model.User{
		Username:     req.Username,
		Phone:        optional(req.Phone),
		Email:        optional(strings.ToLower(req.Email)),
		PasswordHash: passwordHash,
		Salt:         salt,
		Nickname:     optional(req.Nickname),
		Role:         model.RoleUser,
		Status:       model.UserStatusNormal,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if pkgutils.GetErrorCode(err) == pkgutils.CodeConflict {
			return nil, pkgutils.NewError(pkgutils.CodeConflict, "account already exists")
		}
		logger.WithError(err).Error("create user failed")
		return nil, pkgutils.WrapError(err, pkgutils.CodeInternalError, "registration failed")
	}

	logger.WithField("user_id", user.ID).Info("user register success")
	return user, nil
}

// Login logs in a user
func (s *authService) Login(ctx context.Context, req *LoginRequest, client ClientInfo) (*TokenResponse, error) {
	logger := log.WithContext(ctx).WithFields(logrus.Fields{
		"account": pkgutils.MaskAccount(req.Account),
		"ip":      client.IP,
	})

	// 1. Find user (username, phone or email)
	user, err := s.findUserByAccount(ctx, req.Account)
	if err != nil {
		logger.Warn("login unknown account")
		return nil, errBadCredentials
	}

	// 2. Check user status
	if !user.IsActive() {
		return nil, pkgutils.NewError(pkgutils.CodeForbidden, "account disabled")
	}

	// 3. Check login attempts
	if err := s.checkLoginAttempts(ctx, user.ID); err != nil {
		return nil, err
	}

	// 4. Verify password
	if !verifyPassword(req.Password+user.Salt, user.PasswordHash) {
		s.recordLoginFailure(ctx, user.ID)
		logger.WithField("user_id", user.ID).Warn("login bad password")
		return nil, errBadCredentials
	}

	// 5. Open session and mint tokens
	sessionID := utils.GenerateTokenID()
	tokens, refreshToken, err := s.issueTokens(user, sessionID)
	if err != nil {
		return nil, err
	}
	sess := &session.Session{
		ID:          sessionID,
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		RefreshHash: session.HashToken(refreshToken),
		IP:          client.IP,
		UserAgent:   client.UserAgent,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		logger.WithError(err).Error("create session failed")
		return nil, pkgutils.WrapError(err, pkgutils.CodeServiceError, "failed to create session")
	}

	// 6. Update last login info, failures are not fatal
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, client.IP, time.Now()); err != nil {
		logger.WithError(err).Warn("update last login failed")
	}

	// 7. Clear login failures
	s.clearLoginFailures(ctx, user.ID)

	logger.WithField("user_id", user.ID).Info("user login success")
	return tokens, nil
}

// Logout logs out a user
func (s *authService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return pkgutils.WrapError(err, pkgutils.CodeServiceError, "logout failed")
	}
	log.WithContext(ctx).WithField("session_id", sessionID).Info("user logout")
	return nil
}

// Refresh rotates the refresh token
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	// 1. Validate refresh token
	claims, err := s.jwtManager.ValidateTokenType(refreshToken, utils.TokenTypeRefresh)
	if err != nil {
		return nil, pkgutils.NewError(pkgutils.CodeUnauthorized, "refresh token invalid")
	}

	// 2. Session must still exist and belong to the same user
	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, sessionError(err)
	}
	if sess.UserID != claims.UserID {
		return nil, errSessionExpired
	}

	// 3. Reload user for current role and status
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, errSessionExpired
	}
	if !user.IsActive() {
		_ = s.sessions.Delete(ctx, sess.ID)
		return nil, pkgutils.NewError(pkgutils.CodeForbidden, "account disabled")
	}

	// 4. Mint and rotate; a replayed refresh token fails the compare
	tokens, newRefresh, err := s.issueTokens(user, sess.ID)
	if err != nil {
		return nil, err
	}
	oldHash := session.HashToken(refreshToken)
	if err := s.sessions.Rotate(ctx, sess.ID, oldHash, session.HashToken(newRefresh)); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			log.WithContext(ctx).WithFields(logrus.Fields{
				"user_id":    user.ID,
				"session_id": sess.ID,
			}).Warn("refresh token reuse, ending session")
			_ = s.sessions.Delete(ctx, sess.ID)
		}
		return nil, sessionError(err)
	}

	return tokens, nil
}

// ChangePassword changes user password
func (s *authService) ChangePassword(ctx context.Context, userID uint64, sessionID string, req *ChangePasswordRequest) error {
	// 1. Get user
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	// 2. Verify old password
	if !verifyPassword(req.OldPassword+user.Salt, user.PasswordHash) {
		return pkgutils.NewError(pkgutils.CodeInvalidParam, "old password incorrect")
	}

	// 3. New salt and hash
	salt, err := pkgutils.GenerateSalt()
	if err != nil {
		return pkgutils.WrapError(err, pkgutils.CodeInternalError, "system error")
	}
	newPasswordHash, err := hashPassword(req.NewPassword + salt)
	if err != nil {
		return pkgutils.WrapError(err, pkgutils.CodeInternalError, "system error")
	}

	// 4. Update user password
	if err := s.userRepo.UpdatePassword(ctx, userID, newPasswordHash, salt); err != nil {
		return pkgutils.WrapError(err, pkgutils.CodeInternalError, "change password failed")
	}

	// 5. End every other session
	revoked, err := s.sessions.DeleteOthers(ctx, userID, sessionID)
	if err != nil {
		log.WithContext(ctx).WithError(err).Warn("revoke sessions failed")
	}

	log.WithContext(ctx).WithFields(logrus.Fields{
		"user_id": userID,
		"revoked": revoked,
	}).Info("user changed password")
	return nil
}

// Profile returns the account
func (s *authService) Profile(ctx context.Context, userID uint64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// ValidateToken validates an access token
func (s *authService) ValidateToken(ctx context.Context, token string) (*utils.JWTClaims, error) {
	// 1. Validate signature, expiry and type
	claims, err := s.jwtManager.ValidateTokenType(token, utils.TokenTypeAccess)
	if err != nil {
		return nil, pkgutils.NewError(pkgutils.CodeUnauthorized, "token invalid")
	}

	// 2. Session must still exist
	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, sessionError(err)
	}
	if sess.UserID != claims.UserID {
		return nil, errSessionExpired
	}

	return claims, nil
}

// Helper methods

func (s *authService) issueTokens(user *model.User, sessionID string) (*TokenResponse, string, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username, user.Role, sessionID)
	if err != nil {
		return nil, "", pkgutils.WrapError(err, pkgutils.CodeInternalError, "generate token failed")
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username, sessionID)
	if err != nil {
		return nil, "", pkgutils.WrapError(err, pkgutils.CodeInternalError, "generate token failed")
	}
	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.AccessTTL().Seconds()),
		TokenType:    "Bearer",
	}, refreshToken, nil
}

// findUserByAccount finds a user by account (username/phone/email)
func (s *authService) findUserByAccount(ctx context.Context, account string) (*model.User, error) {
	if user, err := s.userRepo.GetByUsername(ctx, account); err == nil {
		return user, nil
	}
	if user, err := s.userRepo.GetByPhone(ctx, account); err == nil {
		return user, nil
	}
	if strings.Contains(account, "@") {
		if user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(account)); err == nil {
			return user, nil
		}
	}
	return nil, pkgutils.NewError(pkgutils.CodeNotFound, "user not found")
}

func attemptsKey(userID uint64) string {
	return fmt.Sprintf("auth:login_attempts:%d", userID)
}

// checkLoginAttempts checks login attempts
func (s *authService) checkLoginAttempts(ctx context.Context, userID uint64) error {
	attempts, err := s.redis.Get(ctx, attemptsKey(userID)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		// fail open, the password check still applies
		log.WithContext(ctx).WithError(err).Warn("read login attempts failed")
		return nil
	}
	if attempts >= s.policy.MaxAttempts {
		return pkgutils.Errorf(pkgutils.CodeRateLimit,
			"login failed too many times, please try again in %s", s.policy.LockFor)
	}
	return nil
}

// recordLoginFailure records a login failure
func (s *authService) recordLoginFailure(ctx context.Context, userID uint64) {
	key := attemptsKey(userID)
	pipe := s.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.policy.LockFor)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithContext(ctx).WithError(err).Warn("record login failure failed")
	}
}

// clearLoginFailures clears login failures
func (s *authService) clearLoginFailures(ctx context.Context, userID uint64) {
	s.redis.Del(ctx, attemptsKey(userID))
}

func sessionError(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return errSessionExpired
	}
	return pkgutils.WrapError(err, pkgutils.CodeServiceError, "session store unavailable")
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
