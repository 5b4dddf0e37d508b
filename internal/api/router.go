package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/custody-infra/internal/auth"
	"github.com/example/custody-infra/internal/security"
)

// Dependencies wires the router. Vault is the only mandatory field; auth,
// rate limiting, journaling, and the allowlist activate when provided.
type Dependencies struct {
	Logger       *slog.Logger
	Vault        Vault
	OAuth        *auth.OAuthServer
	JWTValidator *auth.JWTValidator
	Recorder     Recorder
	RateLimiter  *security.RedisTokenBucket
	IPAllowlist  []*net.IPNet
	MaxBodyBytes int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	validators := map[string]*security.JSONSchemaValidator{}
	for name, schema := range map[string]string{
		"depositNative":  depositNativeSchema,
		"depositAsset":   depositAssetSchema,
		"depositSwap":    depositSwapSchema,
		"withdrawNative": withdrawNativeSchema,
		"withdrawAsset":  withdrawAssetSchema,
		"withdrawStable": withdrawStableSchema,
		"registerAsset":  registerAssetSchema,
		"adminExtract":   adminExtractSchema,
	} {
		v, err := security.NewJSONSchemaValidator(schema)
		if err != nil {
			return nil, err
		}
		validators[name] = v
	}

	onAuthError := func(w http.ResponseWriter, r *http.Request, status int, code string) {
		security.WriteJSONError(w, r, status, code)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(security.IPAllowlist(deps.IPAllowlist))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByPrincipal))
	}
	if deps.Recorder != nil {
		r.Use(JournalMiddleware(deps.Recorder))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if deps.OAuth != nil {
		r.Post("/oauth/token", deps.OAuth.TokenHandler)
		r.Get("/oauth/jwks.json", deps.OAuth.JWKSHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTValidator, onAuthError))

		write := func(r chi.Router) chi.Router {
			return r.With(auth.RequireScopes(onAuthError, auth.ScopeWrite))
		}
		read := func(r chi.Router) chi.Router {
			return r.With(auth.RequireScopes(onAuthError, auth.ScopeRead))
		}
		admin := func(r chi.Router) chi.Router {
			return r.With(auth.RequireScopes(onAuthError, auth.ScopeAdmin))
		}

		r.Route("/deposits", func(r chi.Router) {
			write(r).With(validators["depositNative"].Middleware).Post("/native", handleDepositNative(deps.Vault))
			write(r).With(validators["depositAsset"].Middleware).Post("/asset", handleDepositAsset(deps.Vault))
			write(r).With(validators["depositSwap"].Middleware).Post("/swap", handleDepositSwap(deps.Vault))
		})

		r.Route("/withdrawals", func(r chi.Router) {
			write(r).With(validators["withdrawNative"].Middleware).Post("/native", handleWithdraw(deps.Vault, "native"))
			write(r).With(validators["withdrawAsset"].Middleware).Post("/asset", handleWithdraw(deps.Vault, "asset"))
			write(r).With(validators["withdrawStable"].Middleware).Post("/stable", handleWithdraw(deps.Vault, "stable"))
		})

		r.Route("/admin", func(r chi.Router) {
			admin(r).With(validators["registerAsset"].Middleware).Post("/assets", handleRegisterAsset(deps.Vault))
			admin(r).Delete("/assets/{id}", handleUnregisterAsset(deps.Vault))
			admin(r).With(validators["adminExtract"].Middleware).Post("/extract", handleAdminExtract(deps.Vault))
			admin(r).Get("/total-value", handleTotalValue(deps.Vault))
		})

		read(r).Get("/balances", handleBalances(deps.Vault))
		read(r).Get("/value", handlePrincipalValue(deps.Vault))
		read(r).Get("/price", handlePrice(deps.Vault))
		read(r).Get("/assets", handleListAssets(deps.Vault))
		read(r).Get("/assets/{id}", handleGetAsset(deps.Vault))
		read(r).Get("/stats", handleStats(deps.Vault))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

// rateLimitKeyByPrincipal keys the bucket on the authenticated caller,
// falling back to source IP for unauthenticated endpoints.
func rateLimitKeyByPrincipal(r *http.Request) string {
	if ai, ok := auth.AuthInfoFromContext(r.Context()); ok && ai.ClientID != "" {
		return "client:" + ai.ClientID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
