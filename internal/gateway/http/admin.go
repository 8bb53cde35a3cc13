package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/handlers"
	"github.com/aussiebroadwan/tabgate/internal/gateway/hub"
	"github.com/aussiebroadwan/tabgate/internal/gateway/service"
	"github.com/aussiebroadwan/tabgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/tabgate/pkg/httpx"
	"github.com/aussiebroadwan/tabgate/pkg/slogx"
)

// AdminHandler serves the operator endpoints. Every route is behind
// AuthnMiddleware and RequireRole("admin").
type AdminHandler struct {
	Credentials  *credential.Manager
	Gateway      *hub.Gateway
	UsersService *service.UsersService
	RulesService *service.RulesService
	Now          func() time.Time
}

func (h *AdminHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func caller(r *http.Request) domain.Identity {
	p, _ := httpx.PrincipalFromContext(r.Context())
	return domain.Identity{Subject: p.Subject, Role: domain.Role(p.Role), TokenID: p.TokenID}
}

func toSDKRules(rs domain.RuleSet) gatewaysdk.Rules {
	out := make(gatewaysdk.Rules, len(rs))
	for t, roles := range rs {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		out[t] = names
	}
	return out
}

func fromSDKRules(rs gatewaysdk.Rules) domain.RuleSet {
	out := make(domain.RuleSet, len(rs))
	for t, names := range rs {
		roles := make([]domain.Role, len(names))
		for i, n := range names {
			roles[i] = domain.Role(n)
		}
		out[t] = roles
	}
	return out
}

// HandleRevoke godoc
//
//	@Summary		Revoke a token
//	@Description	Adds the token to the revocation set for the rest of its lifetime. Revoking an expired or already revoked token succeeds without effect.
//	@Description	Live connections are not dropped; the token is refused at the next connect, refresh or admin call.
//	@Tags			Admin
//	@Accept			json
//	@Security		BearerAuth
//	@Param			request	body	gatewaysdk.RevokeRequest	true	"Token to revoke"
//	@Success		204
//	@Failure		400	{object}	httpx.ErrorResponse	"Token missing or not signed by this gateway"
//	@Failure		403	{object}	httpx.ErrorResponse	"Caller is not an admin"
//	@Router			/v1/admin/revoke [post].
func (h *AdminHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req gatewaysdk.RevokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Token == "" {
		gatewaysdk.ErrInvalidRequest.With("token is required").WriteError(w)
		return
	}

	if err := h.Credentials.RevokeToken(r.Context(), req.Token); err != nil {
		e := apiError(err)
		if e.Code == gatewaysdk.ErrorCodeInvalidToken {
			e = gatewaysdk.ErrInvalidRequest.With("token is not a valid gateway credential")
		}
		e.WriteError(w)
		return
	}
	slogx.FromContext(r.Context()).Warn("token revoked by admin")
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetRules godoc
//
//	@Summary		Get permission rules
//	@Description	Returns the rule table mapping each message type to the roles allowed to send it.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	gatewaysdk.RulesResponse
//	@Failure		403	{object}	httpx.ErrorResponse	"Caller is not an admin"
//	@Router			/v1/admin/rules [get].
func (h *AdminHandler) HandleGetRules(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.RulesResponse{Rules: toSDKRules(h.RulesService.Rules())})
}

// HandleUpdateRules godoc
//
//	@Summary		Update permission rules
//	@Description	Merges the given rules into the table, or replaces it when replace is true. A type mapped to an empty list is removed.
//	@Description	The change is persisted and applies to the next message on every connection.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		gatewaysdk.UpdateRulesRequest	true	"Rules"
//	@Success		200		{object}	gatewaysdk.RulesResponse		"The resulting table"
//	@Failure		400		{object}	httpx.ErrorResponse				"Unknown role or empty message type"
//	@Failure		403		{object}	httpx.ErrorResponse				"Caller is not an admin"
//	@Router			/v1/admin/rules [put].
func (h *AdminHandler) HandleUpdateRules(w http.ResponseWriter, r *http.Request) {
	var req gatewaysdk.UpdateRulesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || len(req.Rules) == 0 {
		gatewaysdk.ErrInvalidRequest.With("rules are required").WriteError(w)
		return
	}

	rules, err := h.RulesService.Update(r.Context(), caller(r), fromSDKRules(req.Rules), req.Replace)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.RulesResponse{Rules: toSDKRules(rules)})
}

// HandleMetrics godoc
//
//	@Summary		Gateway metrics
//	@Description	Counters for connections and per-message pipeline outcomes since start.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	gatewaysdk.MetricsResponse
//	@Failure		403	{object}	httpx.ErrorResponse	"Caller is not an admin"
//	@Router			/v1/admin/metrics [get].
func (h *AdminHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	m := h.Gateway.Metrics()
	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.MetricsResponse{
		TotalConnections:        m.TotalConnections,
		ActiveConnections:       m.ActiveConnections,
		MessagesProcessed:       m.MessagesProcessed,
		AuthFailures:            m.AuthFailures,
		RateLimitHits:           m.RateLimitHits,
		PermissionDenials:       m.PermissionDenials,
		InvalidMessages:         m.InvalidMessages,
		TokenExpiredDisconnects: m.TokenExpiredDisconnects,
		IdleDisconnects:         m.IdleDisconnects,
		SendFailures:            m.SendFailures,
	})
}

// HandleConnections godoc
//
//	@Summary		List live connections
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	gatewaysdk.ConnectionsResponse
//	@Failure		403	{object}	httpx.ErrorResponse	"Caller is not an admin"
//	@Router			/v1/admin/connections [get].
func (h *AdminHandler) HandleConnections(w http.ResponseWriter, r *http.Request) {
	conns := h.Gateway.Connections()
	out := make([]gatewaysdk.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, gatewaysdk.Connection{
			ID:             c.ID,
			Subject:        c.Subject,
			Role:           string(c.Role),
			ConnectedAt:    c.ConnectedAt,
			LastActivityAt: c.LastActivityAt,
			TokenExpiresAt: c.TokenExpiresAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.ConnectionsResponse{Connections: out})
}

func userResponse(u domain.User, uri string) gatewaysdk.UserResponse {
	return gatewaysdk.UserResponse{
		ID:              u.ID,
		Username:        u.Username,
		Role:            string(u.Role),
		MFAEnabled:      u.MFAEnabled(),
		ProvisioningURI: uri,
		CreatedAt:       u.CreatedAt,
	}
}

// HandleCreateUser godoc
//
//	@Summary		Create a user
//	@Description	Creates a user with a fixed role. With enable_mfa the response carries the otpauth:// provisioning URI, shown only once.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		gatewaysdk.CreateUserRequest	true	"New user"
//	@Success		201		{object}	gatewaysdk.UserResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"Invalid username, role or weak password"
//	@Failure		403		{object}	httpx.ErrorResponse	"Caller is not an admin"
//	@Failure		409		{object}	httpx.ErrorResponse	"Username taken"
//	@Router			/v1/admin/users [post].
func (h *AdminHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req gatewaysdk.CreateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		gatewaysdk.ErrInvalidRequest.WriteError(w)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeServiceError(r.Context(), w, service.ErrInvalidRole)
		return
	}

	created, err := h.UsersService.CreateUser(r.Context(), service.CreateUserInput{
		Username:  req.Username,
		Password:  req.Password,
		Role:      role,
		EnableMFA: req.EnableMFA,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userResponse(created.User, created.ProvisioningURI))
}

// HandleBroadcast godoc
//
//	@Summary		Broadcast to live connections
//	@Description	Sends a broadcast frame to every live connection, or only those holding role.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		gatewaysdk.BroadcastRequest	true	"Payload and optional role filter"
//	@Success		200		{object}	gatewaysdk.BroadcastResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"Missing payload or unknown role"
//	@Failure		403		{object}	httpx.ErrorResponse	"Caller is not an admin"
//	@Router			/v1/admin/broadcast [post].
func (h *AdminHandler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req gatewaysdk.BroadcastRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || len(req.Payload) == 0 {
		gatewaysdk.ErrInvalidRequest.With("payload is required").WriteError(w)
		return
	}

	var roles []domain.Role
	if req.Role != "" {
		role, err := domain.ParseRole(req.Role)
		if err != nil {
			writeServiceError(r.Context(), w, service.ErrInvalidRole)
			return
		}
		roles = append(roles, role)
	}

	from := caller(r)
	n, err := h.Gateway.Broadcast(handlers.BroadcastMessage{
		Type:    "broadcast",
		From:    from.Subject,
		Role:    from.Role,
		Payload: req.Payload,
		SentAt:  h.now().UTC(),
	}, nil, roles...)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.BroadcastResponse{Delivered: n})
}
