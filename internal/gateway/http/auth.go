package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/service"
	"github.com/aussiebroadwan/tabgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/tabgate/pkg/httpx"
)

// AuthHandler serves the login and token lifecycle endpoints.
type AuthHandler struct {
	LoginService *service.LoginService
}

func tokenResponse(pair domain.TokenPair, now time.Time) gatewaysdk.TokenResponse {
	return gatewaysdk.TokenResponse{
		AccessToken:      pair.Access.Token,
		RefreshToken:     pair.Refresh.Token,
		TokenType:        "Bearer",
		ExpiresIn:        int(pair.Access.ExpiresAt.Sub(now).Seconds()),
		RefreshExpiresIn: int(pair.Refresh.ExpiresAt.Sub(now).Seconds()),
		Subject:          pair.Access.Subject,
		Role:             string(pair.Access.Role),
	}
}

// HandleLogin godoc
//
//	@Summary		Log in
//	@Description	Exchanges a username and password for an access and refresh token pair.
//	@Description	Accounts with MFA enabled must also send a current TOTP code in otp.
//	@Description	Five consecutive failures lock the username for fifteen minutes.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatewaysdk.LoginRequest		true	"Credentials"
//	@Success		200		{object}	gatewaysdk.TokenResponse	"Token pair"
//	@Failure		400		{object}	httpx.ErrorResponse			"Malformed request"
//	@Failure		401		{object}	httpx.ErrorResponse			"Invalid credentials or missing OTP"
//	@Failure		429		{object}	httpx.ErrorResponse			"Account locked or rate limited"
//	@Router			/v1/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req gatewaysdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		gatewaysdk.ErrInvalidRequest.With("username and password are required").WriteError(w)
		return
	}

	pair, err := h.LoginService.Login(r.Context(), req.Username, req.Password, req.OTP)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair, pair.Access.IssuedAt))
}

// HandleRefresh godoc
//
//	@Summary		Refresh tokens
//	@Description	Rotates a refresh token. The presented token is revoked and a new pair is issued with the user's current role.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatewaysdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	gatewaysdk.TokenResponse	"New token pair"
//	@Failure		400		{object}	httpx.ErrorResponse			"Malformed request"
//	@Failure		401		{object}	httpx.ErrorResponse			"Refresh token invalid, expired or revoked"
//	@Router			/v1/token/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req gatewaysdk.RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		gatewaysdk.ErrInvalidRequest.With("refresh_token is required").WriteError(w)
		return
	}

	pair, err := h.LoginService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair, pair.Access.IssuedAt))
}

// HandleLogout godoc
//
//	@Summary		Log out
//	@Description	Revokes the bearer access token and, when given, the refresh token.
//	@Tags			Auth
//	@Accept			json
//	@Security		BearerAuth
//	@Param			request	body	gatewaysdk.LogoutRequest	false	"Refresh token to revoke"
//	@Success		204
//	@Failure		401	{object}	httpx.ErrorResponse	"Missing or invalid bearer token"
//	@Router			/v1/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())

	var req gatewaysdk.LogoutRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			gatewaysdk.ErrInvalidRequest.WriteError(w)
			return
		}
	}

	if err := h.LoginService.Logout(r.Context(), p.RawBearer, req.RefreshToken); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
