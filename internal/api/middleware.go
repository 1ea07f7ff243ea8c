package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
)

const requestIdHeader = "X-Request-Id"

type contextKey string

const tokenKey contextKey = "token"

func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

func Token(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok
}

func (s *RumbleApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// requestId tags the request and response with an id, keeping one supplied
// by the client.
func (s *RumbleApp) requestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIdHeader)
		if id == "" {
			var err error
			id, err = shortid.Generate()
			if err != nil {
				s.log.Printf("generate request id: %v", err)
				id = "-"
			}
			r.Header.Set(requestIdHeader, id)
		}

		w.Header().Set(requestIdHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *RumbleApp) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	s.log.Printf("[%s] %s %s %d %d",
		params.Request.Header.Get(requestIdHeader),
		params.Request.Method,
		params.URL.RequestURI(),
		params.StatusCode,
		params.Size,
	)
}

// authMiddleware requires the Authorization header to carry a session
// token, optionally prefixed with "Bearer ". The token itself is checked
// by the chat server.
func (s *RumbleApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithToken(r.Context(), token)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
