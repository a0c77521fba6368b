package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/router"
	"go.uber.org/zap"
)

// Handler exposes the flows as JSON endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the endpoints on r. requireAuth guards /revoke, which acts
// on the caller's own account.
func (h *Handler) Routes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Post("/sign-in", h.SignIn)
	r.Post("/sign-in/oauth", h.SignInWithOAuth)
	r.Post("/sign-up", h.SignUp)
	r.Post("/sign-up/oauth", h.SignUpWithOAuth)
	r.Post("/sign-up/admin", h.AdminSignUp)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/reset-password", h.ResetPassword)
	r.Post("/confirm-email", h.ConfirmEmail)
	r.Post("/resend-confirmation", h.ResendEmailConfirmation)
	r.Post("/refresh", h.RefreshToken)
	r.Post("/sign-out", h.SignOut)
	r.With(requireAuth).Post("/revoke", h.Revoke)
}

type signInBody struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var body signInBody
	if !h.decode(w, r, &body) {
		return
	}
	pair, err := h.svc.SignIn(r.Context(), SignInRequest(body))
	h.respond(w, http.StatusOK, pair, err)
}

type oauthSignInBody struct {
	Email    string `json:"email"`
	ID       string `json:"id"`
	Provider string `json:"service"`
}

func (h *Handler) SignInWithOAuth(w http.ResponseWriter, r *http.Request) {
	var body oauthSignInBody
	if !h.decode(w, r, &body) {
		return
	}
	pair, err := h.svc.SignInWithOAuth(r.Context(), OAuthSignInRequest{
		Email:      body.Email,
		ExternalID: body.ID,
		Provider:   entity.Provider(body.Provider),
	})
	h.respond(w, http.StatusOK, pair, err)
}

type signUpBody struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var body signUpBody
	if !h.decode(w, r, &body) {
		return
	}
	res, err := h.svc.SignUp(r.Context(), SignUpRequest{
		Email:    body.Email,
		Username: body.Username,
		Password: body.Password,
		Role:     body.Role,
	})
	h.respond(w, http.StatusCreated, res, err)
}

type oauthSignUpBody struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	ID       string `json:"id"`
	Provider string `json:"service"`
}

func (h *Handler) SignUpWithOAuth(w http.ResponseWriter, r *http.Request) {
	var body oauthSignUpBody
	if !h.decode(w, r, &body) {
		return
	}
	res, err := h.svc.SignUpWithOAuth(r.Context(), OAuthSignUpRequest{
		Email:      body.Email,
		Username:   body.Username,
		Role:       body.Role,
		ExternalID: body.ID,
		Provider:   entity.Provider(body.Provider),
	})
	h.respond(w, http.StatusCreated, res, err)
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) AdminSignUp(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if !h.decode(w, r, &body) {
		return
	}
	res, err := h.svc.AdminSignUp(r.Context(), body.Email, body.Password)
	h.respond(w, http.StatusCreated, res, err)
}

type emailBody struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body emailBody
	if !h.decode(w, r, &body) {
		return
	}
	out, err := h.svc.ForgotPassword(r.Context(), body.Email)
	h.respond(w, http.StatusOK, out, err)
}

type resetBody struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetBody
	if !h.decode(w, r, &body) {
		return
	}
	out, err := h.svc.ResetPassword(r.Context(), body.Email, body.Code, body.Password)
	h.respond(w, http.StatusOK, out, err)
}

type confirmBody struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var body confirmBody
	if !h.decode(w, r, &body) {
		return
	}
	out, err := h.svc.ConfirmEmail(r.Context(), body.UserID, body.Code)
	h.respond(w, http.StatusOK, out, err)
}

func (h *Handler) ResendEmailConfirmation(w http.ResponseWriter, r *http.Request) {
	var body emailBody
	if !h.decode(w, r, &body) {
		return
	}
	out, err := h.svc.ResendEmailConfirmation(r.Context(), body.Email)
	h.respond(w, http.StatusOK, out, err)
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if !h.decode(w, r, &body) {
		return
	}
	pair, err := h.svc.RefreshToken(r.Context(), body.RefreshToken)
	h.respond(w, http.StatusOK, pair, err)
}

// SignOut takes the access token from the Authorization header. It may
// already be expired.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	scheme, raw, _ := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	err := h.svc.SignOut(r.Context(), strings.TrimSpace(raw))
	h.respond(w, http.StatusNoContent, nil, err)
}

// Revoke clears the refresh token of the authenticated caller.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := router.ClaimsFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	err := h.svc.Revoke(r.Context(), claims.Subject)
	h.respond(w, http.StatusNoContent, nil, err)
}

// maxBodyBytes bounds every request body.
const maxBodyBytes = 4 << 10

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: string(KindBadRequest), Message: "payload too large"})
			return false
		}
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: string(KindBadRequest), Message: "invalid payload"})
		return false
	}
	return true
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		k := KindOf(err)
		msg := err.Error()
		if k == KindUnexpected {
			// foreign errors may carry internals
			msg = "something went wrong"
		}
		if k == KindInfrastructure {
			w.Header().Set("Retry-After", "1")
		}
		h.writeJSON(w, StatusOf(k), errorBody{Error: string(k), Message: msg})
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	h.writeJSON(w, status, v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
