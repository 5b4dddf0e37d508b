package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrClientNotFound = errors.New("client not found")

// Client is a registered API caller: a custody integration or an operator
// tool. Scopes bound what tokens it can mint.
type Client struct {
	ID         string
	SecretHash string
	Scopes     []string
}

type ClientStore interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// OAuthServer issues client-credentials access tokens for the custody API.
type OAuthServer struct {
	Store          ClientStore
	Keys           *KeySet
	Issuer         string
	AccessTokenTTL time.Duration
}

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

func HashClientSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func VerifyClientSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

func (s *OAuthServer) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_ = r.ParseForm()

	if grant := formOrQuery(r, "grant_type"); grant != "client_credentials" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	client, ok := s.authenticate(r)
	if !ok {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	requested := strings.Fields(r.FormValue("scope"))
	granted := grantScopes(client.Scopes, requested)
	if len(requested) > 0 && len(granted) == 0 {
		writeOAuthError(w, http.StatusForbidden, "invalid_scope")
		return
	}

	resp, err := s.mint(client, granted)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// authenticate resolves the caller from Basic auth or form credentials. All
// failure modes collapse into one answer so the endpoint does not distinguish
// unknown clients from bad secrets.
func (s *OAuthServer) authenticate(r *http.Request) (*Client, bool) {
	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.FormValue("client_id"), r.FormValue("client_secret")
	}
	if id == "" || secret == "" {
		return nil, false
	}

	client, err := s.Store.GetClient(r.Context(), id)
	if err != nil || client == nil {
		return nil, false
	}
	if !VerifyClientSecret(client.SecretHash, secret) {
		return nil, false
	}
	return client, true
}

// mint signs an RS256 access token carrying the granted scopes.
func (s *OAuthServer) mint(client *Client, scopes []string) (*TokenResponse, error) {
	ttl := s.AccessTokenTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   client.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		ClientID: client.ID,
		Scopes:   scopes,
	})
	tok.Header["kid"] = s.Keys.KeyID()

	signed, err := tok.SignedString(s.Keys.PrivateKey())
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		Scope:       strings.Join(scopes, " "),
	}, nil
}

func (s *OAuthServer) JWKSHandler(w http.ResponseWriter, _ *http.Request) {
	jwks, err := s.Keys.JWKS()
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jwks)
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// grantScopes narrows the client's allowed scopes to the requested subset. An
// empty request grants everything the client is allowed, sorted for a stable
// response.
func grantScopes(allowed, requested []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, sc := range allowed {
		if sc = strings.TrimSpace(sc); sc != "" {
			set[sc] = struct{}{}
		}
	}

	if len(requested) == 0 {
		all := make([]string, 0, len(set))
		for sc := range set {
			all = append(all, sc)
		}
		sort.Strings(all)
		return all
	}

	var out []string
	for _, sc := range requested {
		if _, ok := set[sc]; ok {
			out = append(out, sc)
		}
	}
	return out
}

func formOrQuery(r *http.Request, key string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}
