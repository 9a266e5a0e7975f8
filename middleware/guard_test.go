package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehp-platform/authcore"
	"github.com/ehp-platform/authcore/session"
)

type fakeValidator struct {
	tokens map[string]*authcore.AuthResult
	err    error
	seen   []string
}

func (f *fakeValidator) Validate(_ context.Context, token string) (*authcore.AuthResult, error) {
	f.seen = append(f.seen, token)
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.tokens[token]; ok {
		return res, nil
	}
	return nil, authcore.ErrUnauthorized
}

func protected(t *testing.T, v validator) http.Handler {
	t.Helper()
	return guard(v, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		require.True(t, ok)
		_, _ = fmt.Fprint(w, res.PrincipalID)
	}))
}

func TestGuardAcceptsTokenHeaderAndBearer(t *testing.T) {
	v := &fakeValidator{tokens: map[string]*authcore.AuthResult{"good": {PrincipalID: "42"}}}
	h := protected(t, v)

	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("X-Token-Auth", "good") },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") },
		func(r *http.Request) { r.URL.RawQuery = "x-token-auth=good" },
	} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		set(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "42", rec.Body.String())
	}
}

func TestGuardPrefersTokenHeader(t *testing.T) {
	v := &fakeValidator{tokens: map[string]*authcore.AuthResult{"a": {PrincipalID: "1"}, "b": {PrincipalID: "2"}}}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-Token-Auth", "a")
	req.Header.Set("Authorization", "Bearer b")
	rec := httptest.NewRecorder()

	protected(t, v).ServeHTTP(rec, req)
	assert.Equal(t, "1", rec.Body.String())
	assert.Equal(t, []string{"a"}, v.seen)
}

func TestGuardHeadersBeatQueryParam(t *testing.T) {
	v := &fakeValidator{tokens: map[string]*authcore.AuthResult{"a": {PrincipalID: "1"}, "b": {PrincipalID: "2"}}}
	req := httptest.NewRequest(http.MethodGet, "/protected?x-token-auth=b", nil)
	req.Header.Set("Authorization", "Bearer a")
	rec := httptest.NewRecorder()

	protected(t, v).ServeHTTP(rec, req)
	assert.Equal(t, "1", rec.Body.String())
	assert.Equal(t, []string{"a"}, v.seen)
}

func TestGuardRejections(t *testing.T) {
	cases := map[string]struct {
		v      validator
		header string
		value  string
		code   int
	}{
		"no token":        {v: &fakeValidator{}, code: http.StatusUnauthorized},
		"basic auth":      {v: &fakeValidator{}, header: "Authorization", value: "Basic abc", code: http.StatusUnauthorized},
		"empty bearer":    {v: &fakeValidator{}, header: "Authorization", value: "Bearer ", code: http.StatusUnauthorized},
		"invalid token":   {v: &fakeValidator{}, header: "X-Token-Auth", value: "bad", code: http.StatusUnauthorized},
		"nil engine":      {v: nil, header: "X-Token-Auth", value: "x", code: http.StatusUnauthorized},
		"store unavailable": {
			v:      &fakeValidator{err: fmt.Errorf("%w: %w", authcore.ErrUnauthorized, session.ErrRedisUnavailable)},
			header: "X-Token-Auth",
			value:  "x",
			code:   http.StatusServiceUnavailable,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			guard(tc.v, zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler must not run")
			})).ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestGuardNilEngine(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-Token-Auth", "x")
	rec := httptest.NewRecorder()
	Guard(nil, zerolog.Nop())(http.NotFoundHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
