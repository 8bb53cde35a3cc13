package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/aussiebroadwan/tabgate/internal/gateway/service"
	"github.com/aussiebroadwan/tabgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/tabgate/pkg/httpx"
)

type BootstrapHandler struct {
	UsersService *service.UsersService

	// Token, when set, must match X-Bootstrap-Token.
	Token string
}

// ServeHTTP creates the first admin user.
//
//	@Summary		Bootstrap the gateway
//	@Description	Creates the first admin user. Only succeeds while the user table is empty.
//	@Description	When the gateway is configured with a bootstrap token it must be sent in X-Bootstrap-Token.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string						false	"Bootstrap token"
//	@Param			request				body		gatewaysdk.BootstrapRequest	true	"Admin credentials"
//	@Success		201					{object}	gatewaysdk.UserResponse		"The created admin"
//	@Failure		400					{object}	httpx.ErrorResponse			"Invalid username or weak password"
//	@Failure		401					{object}	httpx.ErrorResponse			"Missing or wrong bootstrap token"
//	@Failure		409					{object}	httpx.ErrorResponse			"Gateway already has users"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Token != "" {
		got := r.Header.Get("X-Bootstrap-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "a valid X-Bootstrap-Token header is required")
			return
		}
	}

	var req gatewaysdk.BootstrapRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		gatewaysdk.ErrInvalidRequest.With("username and password are required").WriteError(w)
		return
	}

	u, err := h.UsersService.Bootstrap(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userResponse(u, ""))
}
