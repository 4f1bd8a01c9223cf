package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/httpapi/middleware"
	apperrors "github.com/moguard/panel/internal/shared/errors"
	"github.com/moguard/panel/internal/shared/logger"
	"github.com/moguard/panel/internal/shared/token"
)

type adminLoginRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
	TOTPCode string `form:"totp_code"`
}

// handleAdminLogin grounds on original_source/src/routers/admins.py's
// create_token: bcrypt-verify, then require a valid TOTP code when the admin
// has totp enabled, then issue a bearer token.
func (s *Server) handleAdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, apperrors.NewValidationError("username and password are required"))
		return
	}

	a, err := s.admins.GetByUsername(c.Request.Context(), req.Username)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(a.PasswordHash()), []byte(req.Password)) != nil {
		logger.Get().Warn("admin login failed", zap.String("username", req.Username))
		respondError(c, apperrors.NewUnauthorizedError("incorrect username or password"))
		return
	}

	if a.TOTP().Status {
		if req.TOTPCode == "" {
			respondError(c, apperrors.NewUnauthorizedError("totp code required"))
			return
		}
		if !totp.Validate(req.TOTPCode, a.TOTP().Secret) {
			respondError(c, apperrors.NewUnauthorizedError("invalid totp code"))
			return
		}
	}

	tokenString, err := s.jwt.issue(a)
	if err != nil {
		respondError(c, apperrors.NewInternalError("failed to issue token"))
		return
	}
	respondJSON(c, 200, gin.H{"access_token": tokenString, "token_type": "bearer"})
}

func (s *Server) handleListAdmins(c *gin.Context) {
	admins, err := s.admins.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, adminResponses(admins))
}

type adminCreateRequest struct {
	Username string `json:"username" binding:"required,alphanum,min=3,max=30"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=SELLER RESELLER"`
}

func (s *Server) handleCreateAdmin(c *gin.Context) {
	var req adminCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, apperrors.NewInternalError("failed to hash password"))
		return
	}
	a, err := admin.New(req.Username, string(hash), admin.Role(req.Role), token.APIKey(), token.Secret())
	if err != nil {
		respondError(c, err)
		return
	}
	created, err := s.admins.Create(c.Request.Context(), a)
	if err != nil {
		respondError(c, apperrors.NewConflictError("admin with this username already exists"))
		return
	}
	respondJSON(c, 200, adminResponse(created))
}

func (s *Server) handleGetAdmin(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid admin id"))
		return
	}
	a, err := s.admins.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("admin not found"))
		return
	}
	respondJSON(c, 200, adminResponse(a))
}

type adminUpdateRequest struct {
	CanCreate           bool                 `json:"can_create"`
	CanUpdate           bool                 `json:"can_update"`
	CanRemove           bool                 `json:"can_remove"`
	CountLimit          int64                `json:"count_limit"`
	UsageLimit          int64                `json:"usage_limit"`
	ExpireWarningDays   int                  `json:"expire_warning_days"`
	UsageWarningPercent int                  `json:"usage_warning_percent"`
	Placeholders        []admin.Placeholder  `json:"placeholders"`
	Presentation        admin.Presentation   `json:"presentation"`
	Notify              admin.NotifySinks    `json:"notify"`
}

func (s *Server) handleUpdateAdmin(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid admin id"))
		return
	}
	var req adminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	a, err := s.admins.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("admin not found"))
		return
	}
	caller := middleware.CurrentAdmin(c)
	if caller.Role() != admin.RoleOwner && caller.ID() != a.ID() {
		respondError(c, apperrors.NewForbiddenError("cannot update another admin"))
		return
	}
	a.Update(req.CanCreate, req.CanUpdate, req.CanRemove, req.CountLimit, req.UsageLimit,
		req.ExpireWarningDays, req.UsageWarningPercent, req.Placeholders, req.Presentation, req.Notify)
	if err := s.admins.Update(c.Request.Context(), a); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, adminResponse(a))
}

func (s *Server) handleDeleteAdmin(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid admin id"))
		return
	}
	a, err := s.admins.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("admin not found"))
		return
	}
	a.MarkRemoved()
	if err := s.admins.Update(c.Request.Context(), a); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, gin.H{"detail": "removed"})
}

// handleEnableTOTP is a two-call flow folded into one endpoint: called
// without a body it mints a pending secret and returns its provisioning URI;
// called with {"code": "..."} it confirms the pending secret against the
// submitted code.
func (s *Server) handleEnableTOTP(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid admin id"))
		return
	}
	a, err := s.admins.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("admin not found"))
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	_ = c.ShouldBindJSON(&req)

	if req.Code != "" {
		if a.TOTP().SecretPending == "" || !totp.Validate(req.Code, a.TOTP().SecretPending) {
			respondError(c, apperrors.NewValidationError("invalid totp code"))
			return
		}
		a.ConfirmTOTPEnrollment()
		if err := s.admins.Update(c.Request.Context(), a); err != nil {
			respondError(c, err)
			return
		}
		respondJSON(c, 200, gin.H{"detail": "totp enabled"})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "moguard", AccountName: a.Username()})
	if err != nil {
		respondError(c, apperrors.NewInternalError("failed to generate totp secret"))
		return
	}
	a.BeginTOTPEnrollment(key.Secret())
	if err := s.admins.Update(c.Request.Context(), a); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, gin.H{"secret": key.Secret(), "uri": key.URL()})
}

func (s *Server) handleDisableTOTP(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.NewValidationError("invalid admin id"))
		return
	}
	a, err := s.admins.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("admin not found"))
		return
	}
	a.DisableTOTP(time.Now().UTC())
	if err := s.admins.Update(c.Request.Context(), a); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, gin.H{"detail": "totp disabled"})
}

type adminResponseBody struct {
	ID                  int64               `json:"id"`
	Username            string              `json:"username"`
	Role                admin.Role          `json:"role"`
	APIKey              string              `json:"api_key"`
	CanCreate           bool                `json:"can_create"`
	CanUpdate           bool                `json:"can_update"`
	CanRemove           bool                `json:"can_remove"`
	CountLimit          int64               `json:"count_limit"`
	UsageLimit          int64               `json:"usage_limit"`
	CurrentCount        int64               `json:"current_count"`
	CurrentUsage        int64               `json:"current_usage"`
	ExpireWarningDays   int                 `json:"expire_warning_days"`
	UsageWarningPercent int                 `json:"usage_warning_percent"`
	Placeholders        []admin.Placeholder `json:"placeholders"`
	Presentation        admin.Presentation  `json:"presentation"`
	TOTPEnabled         bool                `json:"totp_enabled"`
}

func adminResponse(a *admin.Admin) adminResponseBody {
	return adminResponseBody{
		ID: a.ID(), Username: a.Username(), Role: a.Role(), APIKey: a.APIKey(),
		CanCreate: a.CanCreate(), CanUpdate: a.CanUpdate(), CanRemove: a.CanRemove(),
		CountLimit: a.CountLimit(), UsageLimit: a.UsageLimit(),
		CurrentCount: a.CurrentCount(), CurrentUsage: a.CurrentUsage(),
		ExpireWarningDays: a.ExpireWarningDays(), UsageWarningPercent: a.UsageWarningPercent(),
		Placeholders: a.Placeholders(), Presentation: a.Presentation(),
		TOTPEnabled: a.TOTP().Status,
	}
}

func adminResponses(admins []*admin.Admin) []adminResponseBody {
	out := make([]adminResponseBody, 0, len(admins))
	for _, a := range admins {
		out = append(out, adminResponse(a))
	}
	return out
}
