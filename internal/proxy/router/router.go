package router

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"authplug/internal/authz"
	"authplug/internal/contextutil"
	"authplug/internal/httputils"
	"authplug/internal/observability/logging"
	"authplug/internal/observability/metrics"

	"github.com/gorilla/mux"
)

// Paths of the endpoints served by the proxy itself
const (
	LoginPath    = "/auth/login"
	LogoutPath   = "/auth/logout"
	IdentityPath = "/auth/me"
)

// Rule defines a routing rule
type Rule struct {
	// Name is a unique identifier for the rule
	Name string

	// Action determines what action to take for matched requests
	// Can be "allow", "deny", or "auth"
	Action string

	// Paths is a list of URL paths this rule applies to
	Paths []string

	// MatchPrefix indicates whether to match the path prefix instead of exact match
	MatchPrefix bool

	// Methods is a list of HTTP methods this rule applies to (empty = all methods)
	Methods []string

	// Permission is the permission required for "auth" action
	// Ignored for other actions
	Permission string

	// Resource is the resource identifier for authorization checks
	// If empty, the default resource from configuration is used
	Resource string
}

// LoginHandler serves interactive login
type LoginHandler interface {
	Login(w http.ResponseWriter, r *http.Request)
	Callback(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
}

// Router is a proxy router that implements routing rules and authentication/authorization
type Router struct {
	*mux.Router
	target      *httputil.ReverseProxy
	authorizer  authz.Authorizer
	rules       []Rule
	logger      *logging.Logger
	metrics     *metrics.Collector
	upstreamURL *url.URL
}

// Config holds router configuration
type Config struct {
	// UpstreamURL is the URL of the upstream service
	UpstreamURL *url.URL

	// UpstreamTimeout is the timeout for upstream service requests
	UpstreamTimeout time.Duration

	// Rules is the list of routing rules
	Rules []Rule

	// Login serves the login endpoints when set
	Login LoginHandler

	// CallbackPath is where the identity provider redirects back to
	CallbackPath string
}

// New creates a new router
func New(config Config, authorizer authz.Authorizer, logger *logging.Logger, metricsCollector *metrics.Collector) *Router {
	target := httputil.NewSingleHostReverseProxy(config.UpstreamURL)
	target.Transport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: config.UpstreamTimeout,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	r := &Router{
		Router:      mux.NewRouter(),
		target:      target,
		authorizer:  authorizer,
		rules:       config.Rules,
		logger:      logger.WithModule("proxy.router"),
		metrics:     metricsCollector,
		upstreamURL: config.UpstreamURL,
	}

	r.setupAuthRoutes(config)
	r.setupRoutes()

	r.logger.Info("Proxying to upstream", "upstream", logging.RedactURL(config.UpstreamURL))

	return r
}

// setupAuthRoutes registers the endpoints served by the proxy itself. They
// take precedence over rules.
func (r *Router) setupAuthRoutes(config Config) {
	r.Path(IdentityPath).Methods(http.MethodGet).HandlerFunc(r.identityHandler)

	if config.Login == nil {
		return
	}

	callbackPath := config.CallbackPath
	if callbackPath == "" {
		callbackPath = "/auth/callback"
	}

	r.Path(LoginPath).Methods(http.MethodGet).HandlerFunc(config.Login.Login)
	r.Path(callbackPath).Methods(http.MethodGet).HandlerFunc(config.Login.Callback)
	r.Path(LogoutPath).Methods(http.MethodGet, http.MethodPost).HandlerFunc(config.Login.Logout)
	r.logger.Debug("Login routes registered", "callback", callbackPath)
}

// setupRoutes configures routes based on rules
func (r *Router) setupRoutes() {
	allowHandler := r.createAllowHandler()
	denyHandler := r.createDenyHandler()

	for _, rule := range r.rules {
		r.logger.Debug("Setting up route",
			"name", rule.Name,
			"action", rule.Action,
			"paths", rule.Paths,
			"methods", rule.Methods,
		)

		for _, path := range rule.Paths {
			var route *mux.Route
			if rule.MatchPrefix {
				route = r.PathPrefix(path)
			} else {
				route = r.Path(path)
			}

			if len(rule.Methods) > 0 {
				route = route.Methods(rule.Methods...)
			}

			route = route.Name(rule.Name)

			switch rule.Action {
			case "allow":
				route.Handler(allowHandler)
			case "deny":
				route.Handler(denyHandler)
			case "auth":
				route.Handler(r.createAuthHandlerForRule(rule))
			default:
				r.logger.Warn("Unknown action in rule, defaulting to deny",
					"rule", rule.Name, "action", rule.Action)
				route.Handler(denyHandler)
			}
		}
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		contextutil.Logger(req.Context(), r.logger).Warn("Request received for undefined route", "path", req.URL.Path)
		http.Error(w, "404 page not found", http.StatusNotFound)
	})
}

// identityHandler writes the identity resolved by the plug chain as JSON
func (r *Router) identityHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	identity := contextutil.GetIdentity(req.Context())
	if identity == nil {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
		return
	}

	_ = json.NewEncoder(w).Encode(identityResponse{
		Subject:  identity.Subject,
		Provider: identity.Provider,
		Name:     identity.Name,
		Email:    identity.Email,
	})
}

type identityResponse struct {
	Subject  string `json:"subject"`
	Provider string `json:"provider"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// createAllowHandler creates a reusable handler for "allow" rules
func (r *Router) createAllowHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ruleName := mux.CurrentRoute(req).GetName()

		contextutil.Logger(req.Context(), r.logger).Debug("Allow handler called",
			"rule", ruleName,
			"path", req.URL.Path,
			"method", req.Method,
		)

		r.metrics.RecordRuleMatch(ruleName, "allow")
		r.proxy(w, req)
	})
}

// createDenyHandler creates a reusable handler for "deny" rules
func (r *Router) createDenyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ruleName := mux.CurrentRoute(req).GetName()

		contextutil.Logger(req.Context(), r.logger).Debug("Deny handler called",
			"rule", ruleName,
			"path", req.URL.Path,
			"method", req.Method,
		)

		r.metrics.RecordRuleMatch(ruleName, "deny")
		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// createAuthHandlerForRule creates a handler for a specific "auth" rule
func (r *Router) createAuthHandlerForRule(rule Rule) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		logger := contextutil.Logger(ctx, r.logger)

		logger.Debug("Auth handler called",
			"rule", rule.Name,
			"permission", rule.Permission,
			"path", req.URL.Path,
			"method", req.Method,
		)
		r.metrics.RecordRuleMatch(rule.Name, "auth")

		identity := contextutil.GetIdentity(ctx)
		if identity == nil {
			logger.Info("Auth failed: no identity", "rule", rule.Name)
			r.metrics.RecordAuthorization(rule.Permission, false)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		resp := r.authorizer.Authorize(&authz.Request{
			Identity:   identity,
			Permission: rule.Permission,
			Resource:   rule.Resource,
			Context:    ctx,
		})

		if resp.Decision == authz.Allow {
			logger.Debug("Authorization successful",
				"subject", identity.Subject,
				"permission", rule.Permission,
				"rule", rule.Name,
			)
			r.metrics.RecordAuthorization(rule.Permission, true)
			r.proxy(w, req)
			return
		}

		if resp.Decision == authz.Error {
			logger.Error("Authorization failed: error", logging.Err(resp.Error), "rule", rule.Name)
		} else {
			logger.Info("Authorization failed",
				"decision", resp.Decision.String(),
				"subject", identity.Subject,
				"permission", rule.Permission,
				"rule", rule.Name,
			)
		}
		r.metrics.RecordAuthorization(rule.Permission, false)
		status := resp.Decision.StatusCode()
		http.Error(w, http.StatusText(status), status)
	})
}

// proxy forwards the request upstream and records the outcome
func (r *Router) proxy(w http.ResponseWriter, req *http.Request) {
	startTime := time.Now()
	wrapper := httputils.NewStatusRecorder(w)

	r.target.ServeHTTP(wrapper, req)

	r.metrics.RecordUpstreamRequest(req.Method, r.upstreamURL.String(), wrapper.Status, time.Since(startTime))
}
