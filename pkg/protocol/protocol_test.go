package protocol_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/config"
	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/pow"
	"github.com/cuemby/credcheck/pkg/protocol"
)

type fakeFingerprint struct{}

func (fakeFingerprint) Fingerprint(context.Context, string) (string, string, error) {
	return "bio", "rat", nil
}

func newChallengeMux(t *testing.T, passwordHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/challenge/email", func(w http.ResponseWriter, r *http.Request) {
		mdata, _ := json.Marshal(model.PoWChallenge{Mask: "0", Key: "k", Seed: 1})
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "email-tok", "mdata": string(mdata)})
	})
	mux.HandleFunc("/challenge/password", func(w http.ResponseWriter, r *http.Request) {
		mdata, _ := json.Marshal(model.PoWChallenge{Mask: "0", Key: "k", Seed: 1})
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "pw-tok", "mdata": string(mdata)})
	})
	mux.HandleFunc("/email", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"action_token": "next"})
	})
	mux.HandleFunc("/password", passwordHandler)
	mux.HandleFunc("/account", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func newSession(t *testing.T, srv *httptest.Server, rules config.Rules) *protocol.Session {
	t.Helper()
	task := model.Task{UserID: "u1", Password: "p1"}
	submitter := protocol.NewHTTPSubmitter(srv.URL)
	powClient := pow.NewServiceClient("")
	s, err := protocol.NewSession(task, srv.URL, "", rules, powClient, fakeFingerprint{}, submitter)
	require.NoError(t, err)
	return s
}

func TestRunClassifiesValidOnSuccessRedirect(t *testing.T) {
	srv := newChallengeMux(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/account?code=abc", http.StatusFound)
	})
	defer srv.Close()

	rules := config.Rules{SuccessHost: srv.URL}
	s := newSession(t, srv, rules)

	result, err := protocol.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, model.StatusValid, result.Status)
	require.NotNil(t, result.Capture) // capture sub-steps fail against the bare test server but never turn VALID into ERROR
}

func TestRunClassifiesInvalidOn401(t *testing.T) {
	srv := newChallengeMux(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	rules := config.Rules{}
	s := newSession(t, srv, rules)

	result, err := protocol.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, model.StatusInvalid, result.Status)
	require.Equal(t, "401", result.ErrorCode)
}

func TestRunClassifiesBlockedOnHumanVerificationMarker(t *testing.T) {
	srv := newChallengeMux(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "please complete human verification")
	})
	defer srv.Close()

	rules := config.Rules{BlockedTokens: []string{"human verification"}}
	s := newSession(t, srv, rules)

	result, err := protocol.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, model.StatusBlocked, result.Status)
}

func TestRunClassifiesInvalidOnCredentialsIncorrectMarker(t *testing.T) {
	srv := newChallengeMux(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "your credentials are incorrect")
	})
	defer srv.Close()

	rules := config.Rules{InvalidTokens: []string{"credentials are incorrect"}}
	s := newSession(t, srv, rules)

	result, err := protocol.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, model.StatusInvalid, result.Status)
	require.Equal(t, "credentials_incorrect", result.ErrorCode)
}

func TestRunReportsFixedCodeOnTaskTimeout(t *testing.T) {
	srv := newChallengeMux(t, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	s := newSession(t, srv, config.Rules{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	result, err := protocol.Run(ctx, s)
	require.NoError(t, err)
	require.Equal(t, model.StatusError, result.Status)
	require.Equal(t, "TASK_TIMEOUT", result.ErrorCode)
}

func TestRunIsErrorOnUnclassifiedResponse(t *testing.T) {
	srv := newChallengeMux(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ordinary page content")
	})
	defer srv.Close()

	s := newSession(t, srv, config.Rules{})

	result, err := protocol.Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, model.StatusError, result.Status)
}
