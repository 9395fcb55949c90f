package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"testing"

	"github.com/matryer/is"
)

func TestThatMissingTokenIsUnauthorized(t *testing.T) {
	is, a := testSetup(t)

	rec := serve(a, ReadScope, "", "")
	is.Equal(http.StatusUnauthorized, rec.Code)
}

func TestThatScopesAreRequired(t *testing.T) {
	is, a := testSetup(t)

	token := newToken([]string{"default"}, []string{"farm.read"})

	rec := serve(a, ReadScope, "Bearer "+token, "")
	is.Equal(http.StatusOK, rec.Code)
	is.Equal("default", rec.Body.String())

	rec = serve(a, ControlScope, "Bearer "+token, "")
	is.Equal(http.StatusUnauthorized, rec.Code)
}

func TestThatTokenCanBePassedInQuery(t *testing.T) {
	is, a := testSetup(t)

	token := newToken([]string{"default", "other"}, []string{"farm.read", "farm.write"})

	rec := serve(a, WriteScope, "", token)
	is.Equal(http.StatusOK, rec.Code)
	is.Equal("grower:default,other", rec.Body.String())
}

func TestGetTenantsWithAllowedScopes(t *testing.T) {
	is := is.New(t)

	ctx := WithAccess(context.Background(), accessMap{
		"default": {ReadScope: {}, WriteScope: {}},
		"other":   {ReadScope: {}},
	})

	tenants := GetTenantsWithAllowedScopes(ctx, ReadScope)
	sort.Strings(tenants)
	is.Equal([]string{"default", "other"}, tenants)

	is.Equal([]string{"default"}, GetTenantsWithAllowedScopes(ctx, ReadScope, WriteScope))
	is.Equal(0, len(GetTenantsWithAllowedScopes(ctx, ControlScope)))
	is.Equal(2, len(GetTenantsWithAllowedScopes(ctx, AnyScope)))
	is.Equal(0, len(GetTenantsWithAllowedScopes(context.Background(), ReadScope)))
}

func serve(a Enticator, scope Scope, header, query string) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenants := GetTenantsWithAllowedScopes(r.Context(), scope)
		sort.Strings(tenants)

		body := ""
		if scope == WriteScope {
			body = GetUser(r.Context()) + ":"
		}
		for i, t := range tenants {
			if i > 0 {
				body += ","
			}
			body += t
		}
		w.Write([]byte(body))
	})

	target := "/api/v0/zones"
	if query != "" {
		target += "?jwt=" + query
	}

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}

	rec := httptest.NewRecorder()
	a.RequireAccess(scope)(next).ServeHTTP(rec, req)

	return rec
}

func newToken(tenants, scopes []string) string {
	enc := base64.RawURLEncoding

	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payload, _ := json.Marshal(map[string]any{"sub": "grower", "tenants": tenants, "scopes": scopes})

	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("signature"))
}

func testSetup(t *testing.T) (*is.I, Enticator) {
	is := is.New(t)

	policies, err := os.Open("../../../../../assets/config/authz.rego")
	is.NoErr(err)
	defer policies.Close()

	a, err := NewAuthenticator(context.Background(), policies)
	is.NoErr(err)

	return is, a
}
