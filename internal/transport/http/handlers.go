// @title Marketbase API
// @version 1.0.0
// @description Multi-tenant marketing dashboard backend
// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/marketbase/marketbase/internal/audit"
	"github.com/marketbase/marketbase/internal/authz"
	"github.com/marketbase/marketbase/internal/directory"
	"github.com/marketbase/marketbase/internal/identity"
	"github.com/marketbase/marketbase/internal/observability/logger"
	"github.com/marketbase/marketbase/internal/session"
	"github.com/marketbase/marketbase/internal/token"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService  *identity.Service
	sessionService   *session.Service
	directoryService *directory.Service
	tokens           *token.Issuer
	auditLogger      audit.Logger
	requireConfirm   bool
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	sessionService *session.Service,
	directoryService *directory.Service,
	tokens *token.Issuer,
	auditLogger audit.Logger,
	requireEmailConfirm bool,
) *Handler {
	return &Handler{
		identityService:  identityService,
		sessionService:   sessionService,
		directoryService: directoryService,
		tokens:           tokens,
		auditLogger:      auditLogger,
		requireConfirm:   requireEmailConfirm,
	}
}

// NewRouter creates a new HTTP router. spa may be nil when no dashboard
// bundle is shipped with the binary.
func NewRouter(h *Handler, rateLimiter *RateLimiter, spa *SPAHandler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Auth endpoints consumed by the dashboard session layer
	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/signup", h.SignUp)
		r.Post("/token", h.Token)

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Post("/logout", h.Logout)
			r.Get("/user", h.GetCurrentUser)
		})
	})

	// Directory endpoints (resolution + administration)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/profiles/{profileID}", h.GetProfile)
		r.Put("/profiles/{profileID}/role", h.ChangeProfileRole)
		r.Post("/user/change-password", h.ChangePassword)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", h.CreateTenant)
			r.Get("/{tenantID}", h.GetTenant)
			r.Post("/{tenantID}/profiles", h.ProvisionProfile)
			r.Get("/{tenantID}/profiles", h.ListProfiles)
		})
	})

	// Dashboard single-page app, when bundled
	if spa != nil {
		r.NotFound(spa.ServeHTTP)
	}

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "marketbase",
	})
}

// userPayload is the wire shape of an account in auth responses.
type userPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name,omitempty"`
}

// sessionPayload is the wire shape of an issued token pair.
type sessionPayload struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`
}

// SignUpRequest represents registration data
type SignUpRequest struct {
	Email       string `json:"email" binding:"required" example:"user@example.com"`
	Password    string `json:"password" binding:"required" example:"secret123"`
	DisplayName string `json:"display_name" example:"Ada Lovelace"`
}

// SignUp handles account registration
// @Summary Register a new account
// @Description Create an account; returns a session unless email confirmation is required
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body SignUpRequest true "Registration Data"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /auth/v1/signup [post]
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to register account",
			logger.Error(err),
			logger.Email(req.Email),
		)

		switch {
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "user already exists")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create account")
		}
		return
	}

	payload := map[string]any{
		"user": &userPayload{ID: user.ID, Email: user.Email, DisplayName: user.DisplayName},
	}

	// With confirmation enabled no session is issued; the client shows
	// a "check your inbox" notice and stays signed out.
	if h.requireConfirm {
		payload["session"] = nil
		respondJSON(w, http.StatusOK, payload)
		return
	}

	if err := h.identityService.ConfirmEmail(r.Context(), user.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to activate account")
		return
	}
	sess, err := h.issueSession(r, user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	payload["session"] = sess
	respondJSON(w, http.StatusOK, payload)
}

// TokenRequest represents a token grant request body
type TokenRequest struct {
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Token handles the password and refresh_token grants
// @Summary Issue tokens
// @Description Exchange credentials or a refresh token for an access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param grant_type query string true "password or refresh_token"
// @Param request body TokenRequest true "Grant payload"
// @Success 200 {object} sessionPayload
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/v1/token [post]
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch r.URL.Query().Get("grant_type") {
	case "password":
		h.passwordGrant(w, r, req)
	case "refresh_token":
		h.refreshGrant(w, r, req)
	default:
		respondError(w, http.StatusBadRequest, "unsupported grant_type")
	}
}

func (h *Handler) passwordGrant(w http.ResponseWriter, r *http.Request, req TokenRequest) {
	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrAccountLocked) {
			respondError(w, http.StatusUnauthorized, "account is temporarily locked")
			return
		}
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess, err := h.issueSession(r, user)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) refreshGrant(w http.ResponseWriter, r *http.Request, req TokenRequest) {
	if req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	sess, newRaw, err := h.sessionService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	user, err := h.identityService.GetUser(r.Context(), sess.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}

	payload, err := h.tokenPayload(r, user, newRaw)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

// issueSession opens a refresh session and builds the token payload.
func (h *Handler) issueSession(r *http.Request, user *identity.User) (*sessionPayload, error) {
	_, raw, err := h.sessionService.Create(r.Context(), user.ID, getIPAddress(r), r.UserAgent())
	if err != nil {
		return nil, err
	}
	return h.tokenPayload(r, user, raw)
}

func (h *Handler) tokenPayload(r *http.Request, user *identity.User, refreshToken string) (*sessionPayload, error) {
	// Tenant and role claims are best effort hints; accounts without a
	// profile still get a token and resolve membership later.
	var tenantID, role string
	if profile, err := h.directoryService.GetProfile(r.Context(), user.ID); err == nil {
		tenantID = profile.TenantID
		role = string(profile.Role)
	}

	access, expiresAt, err := h.tokens.IssueAccessToken(user.ID, user.Email, tenantID, role)
	if err != nil {
		return nil, err
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeTokenIssued,
		TenantID:  tenantID,
		ActorID:   user.ID,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})

	return &sessionPayload{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
		RefreshToken: refreshToken,
		User: &userPayload{
			ID:            user.ID,
			Email:         user.Email,
			EmailVerified: user.EmailVerified,
			DisplayName:   user.DisplayName,
		},
	}, nil
}

// Logout revokes every session of the authenticated account
// @Summary Logout
// @Description Revoke all refresh sessions for the caller
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/v1/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	if err := h.sessionService.RevokeAllForUser(r.Context(), userID); err != nil {
		slog.ErrorContext(r.Context(), "failed to revoke sessions", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLogout,
		ActorID:   userID,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// GetCurrentUser returns the authenticated account
// @Summary Get Current User
// @Description Retrieve details of the currently authenticated account
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} userPayload
// @Failure 404 {object} map[string]string
// @Router /auth/v1/user [get]
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.identityService.GetUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, &userPayload{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		DisplayName:   user.DisplayName,
	})
}

// GetProfile returns a directory profile
// @Summary Get Profile
// @Description Retrieve a profile; callers may read their own, tenant admins anyone in their tenant
// @Tags Directory
// @Produce json
// @Security BearerAuth
// @Param profileID path string true "Profile ID"
// @Success 200 {object} directory.UserProfile
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/profiles/{profileID} [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	callerID := GetUserID(r.Context())

	profile, err := h.directoryService.GetProfile(r.Context(), profileID)
	if err != nil {
		respondError(w, http.StatusNotFound, "profile not found")
		return
	}

	if profileID != callerID {
		caller, err := h.directoryService.GetProfile(r.Context(), callerID)
		if err != nil || caller.TenantID != profile.TenantID || !authz.CanManageTenant(caller.Role) {
			respondError(w, http.StatusForbidden, "not allowed to read this profile")
			return
		}
	}

	respondJSON(w, http.StatusOK, profile)
}

// GetTenant returns the caller's tenant
// @Summary Get Tenant
// @Description Retrieve a tenant; restricted to members of that tenant
// @Tags Directory
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} directory.Tenant
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/tenants/{tenantID} [get]
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	caller, err := h.directoryService.GetProfile(r.Context(), GetUserID(r.Context()))
	if err != nil || caller.TenantID != tenantID {
		respondError(w, http.StatusForbidden, "not a member of this tenant")
		return
	}

	tenant, err := h.directoryService.GetTenant(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found")
		return
	}

	respondJSON(w, http.StatusOK, tenant)
}

// CreateTenantRequest represents tenant creation data
type CreateTenantRequest struct {
	Name     string         `json:"name" binding:"required"`
	Branding map[string]any `json:"branding,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// CreateTenant creates a new tenant
// @Summary Create Tenant
// @Description Create a tenant; requires tenant administration rights
// @Tags Directory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateTenantRequest true "Tenant Data"
// @Success 201 {object} directory.Tenant
// @Failure 403 {object} map[string]string
// @Router /api/v1/tenants [post]
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	caller, err := h.directoryService.GetProfile(r.Context(), GetUserID(r.Context()))
	if err != nil || !authz.CanManageTenant(caller.Role) {
		respondError(w, http.StatusForbidden, "tenant administration rights required")
		return
	}

	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant, err := h.directoryService.CreateTenant(r.Context(), req.Name, req.Branding, req.Settings)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, tenant)
}

// ProvisionProfileRequest represents profile provisioning data
type ProvisionProfileRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Email       string `json:"email" binding:"required"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role" binding:"required"`
}

// ProvisionProfile binds an account to the tenant with a role
// @Summary Provision Profile
// @Description Create a directory profile in the tenant; tenant admins only
// @Tags Directory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Param request body ProvisionProfileRequest true "Profile Data"
// @Success 201 {object} directory.UserProfile
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /api/v1/tenants/{tenantID}/profiles [post]
func (h *Handler) ProvisionProfile(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	caller, err := h.directoryService.GetProfile(r.Context(), GetUserID(r.Context()))
	if err != nil || caller.TenantID != tenantID || !authz.CanManageTenant(caller.Role) {
		respondError(w, http.StatusForbidden, "tenant administration rights required")
		return
	}

	var req ProvisionProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.directoryService.ProvisionProfile(
		r.Context(), req.UserID, tenantID, req.Email, req.DisplayName, directory.Role(req.Role),
	)
	if err != nil {
		if errors.Is(err, directory.ErrInvalidRole) {
			respondError(w, http.StatusBadRequest, "invalid role")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, profile)
}

// ListProfiles lists the tenant's profiles
// @Summary List Profiles
// @Description List directory profiles of the tenant; tenant admins only
// @Tags Directory
// @Produce json
// @Security BearerAuth
// @Param tenantID path string true "Tenant ID"
// @Success 200 {array} directory.UserProfile
// @Failure 403 {object} map[string]string
// @Router /api/v1/tenants/{tenantID}/profiles [get]
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	caller, err := h.directoryService.GetProfile(r.Context(), GetUserID(r.Context()))
	if err != nil || caller.TenantID != tenantID || !authz.CanManageTenant(caller.Role) {
		respondError(w, http.StatusForbidden, "tenant administration rights required")
		return
	}

	profiles, err := h.directoryService.ListProfiles(r.Context(), tenantID, 100, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}

	respondJSON(w, http.StatusOK, profiles)
}

// ChangeRoleRequest represents a role change
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// ChangeProfileRole moves a profile to a different role
// @Summary Change Role
// @Description Change a profile's role within its tenant; tenant admins only
// @Tags Directory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profileID path string true "Profile ID"
// @Param request body ChangeRoleRequest true "New Role"
// @Success 200 {object} directory.UserProfile
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /api/v1/profiles/{profileID}/role [put]
func (h *Handler) ChangeProfileRole(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	target, err := h.directoryService.GetProfile(r.Context(), profileID)
	if err != nil {
		respondError(w, http.StatusNotFound, "profile not found")
		return
	}

	caller, err := h.directoryService.GetProfile(r.Context(), GetUserID(r.Context()))
	if err != nil || caller.TenantID != target.TenantID || !authz.CanManageTenant(caller.Role) {
		respondError(w, http.StatusForbidden, "tenant administration rights required")
		return
	}

	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.directoryService.ChangeRole(r.Context(), profileID, directory.Role(req.Role))
	if err != nil {
		if errors.Is(err, directory.ErrInvalidRole) {
			respondError(w, http.StatusBadRequest, "invalid role")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to change role")
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// ChangePasswordRequest represents password change data
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword changes the caller's password
// @Summary Change Password
// @Description Update the password for the authenticated account
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Password Change Data"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/v1/user/change-password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.identityService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid old password")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "new password does not meet security requirements")
		default:
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "password changed successfully",
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
