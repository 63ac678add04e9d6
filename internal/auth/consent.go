package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/oauth2"

	"github.com/hpungsan/gphotosync/internal/errors"
)

// authResult is what the loopback handler learned from the redirect.
type authResult struct {
	code string
	err  error
}

// Authorize runs the installed-app consent flow on a loopback redirect.
//
// prompt receives the URL the operator must open in a browser. The token is
// exchanged and written to tokenPath before Authorize returns.
func Authorize(ctx context.Context, config *oauth2.Config, tokenPath string, prompt func(authURL string)) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.NewAuth("start loopback listener", err)
	}

	cfg := *config
	cfg.RedirectURL = fmt.Sprintf("http://%s/", listener.Addr().String())
	state := ulid.Make().String()

	results := make(chan authResult, 1)
	server := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.SetKeepAlivesEnabled(false)
	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	prompt(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var res authResult
	select {
	case <-ctx.Done():
		return nil, errors.NewAuth("consent aborted", ctx.Err())
	case res = <-results:
	}
	if res.err != nil {
		return nil, errors.NewAuth("consent failed", res.err)
	}

	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return nil, errors.NewAuth("exchange authorization code", err)
	}
	if err := SaveToken(tokenPath, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// callbackHandler receives the browser redirect and reports the first result.
func callbackHandler(state string, results chan<- authResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			http.NotFound(w, req)
			return
		}

		reply := func(status int, msg string, res authResult) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(status)
			_, _ = fmt.Fprintln(w, msg)
			select {
			case results <- res:
			default:
			}
		}

		q := req.URL.Query()
		if e := q.Get("error"); e != "" {
			reply(http.StatusBadRequest, "Authorization failed: "+e, authResult{err: fmt.Errorf("authorization denied: %s", e)})
			return
		}
		if got := q.Get("state"); got != state {
			reply(http.StatusBadRequest, "Auth state doesn't match", authResult{err: fmt.Errorf("expecting state %q got %q", state, got)})
			return
		}
		code := q.Get("code")
		if code == "" {
			reply(http.StatusBadRequest, "No code returned by remote server", authResult{err: fmt.Errorf("no code returned by remote server")})
			return
		}
		reply(http.StatusOK, "All done. You can close this window and return to gphotosync.", authResult{code: code})
	})
}
