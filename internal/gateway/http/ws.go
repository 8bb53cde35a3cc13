package http

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/aussiebroadwan/tabgate/internal/gateway/hub"
	"github.com/aussiebroadwan/tabgate/pkg/httpx"
	"github.com/aussiebroadwan/tabgate/pkg/slogx"
)

// WebsocketHandler upgrades a request and hands the connection to the
// gateway. Credential problems after the upgrade are reported with close
// codes 4001 to 4003, not HTTP statuses.
type WebsocketHandler struct {
	Gateway *hub.Gateway

	// OriginPatterns are passed to websocket.Accept. Empty means same origin
	// only.
	OriginPatterns []string
}

// ServeHTTP godoc
//
//	@Summary		Open a gateway connection
//	@Description	Upgrades to a websocket. The access token goes in the Authorization header or, for browsers, the access_token query parameter.
//	@Description	The first frame is {"type":"auth_success"}. A rejected credential closes the socket with 4001 (invalid), 4002 (expired) or 4003 (revoked).
//	@Tags			Gateway
//	@Param			access_token	query	string	false	"Access token when the header cannot be set"
//	@Success		101
//	@Failure		401	{object}	httpx.ErrorResponse	"No token presented"
//	@Router			/v1/ws [get].
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := httpx.BearerToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		slogx.FromContext(r.Context()).Warn("websocket upgrade failed", "err", err)
		return
	}

	// Run blocks until the connection is gone and closes the socket itself.
	_ = h.Gateway.Run(r.Context(), hub.NewWebSocket(c), token)
}
