package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/hub"
	"github.com/aussiebroadwan/tabgate/internal/gateway/kv"
	"github.com/aussiebroadwan/tabgate/internal/gateway/service"
	"github.com/aussiebroadwan/tabgate/internal/gateway/store"
	"github.com/aussiebroadwan/tabgate/pkg/httpx"
	"github.com/aussiebroadwan/tabgate/pkg/jwtx"
	"github.com/aussiebroadwan/tabgate/pkg/slogx"

	_ "github.com/aussiebroadwan/tabgate/api/gateway" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	kv    kv.Store

	Credentials  *credential.Manager
	Gateway      *hub.Gateway
	LoginService *service.LoginService
	UsersService *service.UsersService
	RulesService *service.RulesService

	// BootstrapToken, when set, must be presented in X-Bootstrap-Token to
	// create the first admin.
	BootstrapToken string

	// AllowedOrigins are websocket origin patterns beyond the same origin.
	AllowedOrigins []string
}

func NewRouter(
	keys *jwtx.KeySet,
	buildVersion string,
	st store.Store,
	kvs kv.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		kv:           kvs,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerAdmin()
	r.registerWebsocket()
	r.registerBootstrap()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			TabGate Realtime Gateway API
//	@version		0.1.0
//	@description	Login, token lifecycle and operator endpoints for the realtime connection gateway.
//	@description
//	@description				Websocket clients connect to /v1/ws with an access token and exchange JSON frames of the form {"type": "...", ...}.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/tabgate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) authenticator() httpx.Authenticator {
	return accessTokenAuthenticator(r.Credentials)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{LoginService: r.LoginService}

	// Brute force protection is per IP and username; the lockout in the
	// credential manager covers distributed attempts.
	r.Mux.Handle("POST /v1/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "username"),
		),
	)
	r.Mux.Handle("POST /v1/token/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.AuthnMiddleware(r.authenticator()),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{
		Credentials:  r.Credentials,
		Gateway:      r.Gateway,
		UsersService: r.UsersService,
		RulesService: r.RulesService,
	}

	admin := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.authenticator()),
			httpx.RequireRole("admin"),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/admin/revoke", admin(h.HandleRevoke))
	r.Mux.Handle("GET /v1/admin/rules", admin(h.HandleGetRules))
	r.Mux.Handle("PUT /v1/admin/rules", admin(h.HandleUpdateRules))
	r.Mux.Handle("GET /v1/admin/metrics", admin(h.HandleMetrics))
	r.Mux.Handle("GET /v1/admin/connections", admin(h.HandleConnections))
	r.Mux.Handle("POST /v1/admin/users", admin(h.HandleCreateUser))
	r.Mux.Handle("POST /v1/admin/broadcast", admin(h.HandleBroadcast))
}

func (r *Router) registerWebsocket() {
	h := &WebsocketHandler{Gateway: r.Gateway, OriginPatterns: r.AllowedOrigins}

	r.Mux.Handle("GET /v1/ws",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerBootstrap() {
	h := &BootstrapHandler{UsersService: r.UsersService, Token: r.BootstrapToken}

	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	// Monitoring systems may poll frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys, r.kv),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
