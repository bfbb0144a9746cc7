package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/errors"
	"gopkg.in/yaml.v3"
)

// Authenticator resolves a bearer token to the identity behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (db.Identity, error)
}

// ErrUnauthenticated is returned for a missing or unknown token.
var ErrUnauthenticated = errors.New("unauthenticated")

// TokenAuthenticator is a fixed token table.
type TokenAuthenticator map[string]db.Identity

func (t TokenAuthenticator) Authenticate(_ context.Context, token string) (db.Identity, error) {
	id, ok := t[token]
	if !ok {
		return db.Identity{}, ErrUnauthenticated
	}
	return id, nil
}

type tokenFile struct {
	Tokens []struct {
		Token     string `yaml:"token"`
		ID        string `yaml:"id"`
		Email     string `yaml:"email"`
		FullName  string `yaml:"full_name"`
		AvatarURL string `yaml:"avatar_url"`
	} `yaml:"tokens"`
}

// LoadTokens reads a YAML token table:
//
//	tokens:
//	  - token: s3cret
//	    id: 6f1c...
//	    email: me@example.com
func LoadTokens(path string) (TokenAuthenticator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokens file: %w", err)
	}
	var f tokenFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tokens file %s: %w", path, err)
	}

	auth := make(TokenAuthenticator, len(f.Tokens))
	for i, t := range f.Tokens {
		if t.Token == "" || t.ID == "" || t.Email == "" {
			return nil, fmt.Errorf("tokens file %s: entry %d needs token, id and email", path, i)
		}
		auth[t.Token] = db.Identity{ID: t.ID, Email: t.Email, FullName: t.FullName, AvatarURL: t.AvatarURL}
	}
	return auth, nil
}

type ownerKey struct{}

// ownerFrom returns the authenticated owner id of the request.
func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

func (ws *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			// EventSource cannot set headers.
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		id, err := ws.auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		if _, done := ws.provisioned.Load(id.ID); !done {
			if err := ws.db.RegisterIdentity(r.Context(), id); err != nil {
				ws.writeError(w, r, errors.Internal("failed to provision identity", err))
				return
			}
			ws.provisioned.Store(id.ID, struct{}{})
		}

		ctx := context.WithValue(r.Context(), ownerKey{}, id.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
