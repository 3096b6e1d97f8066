// Package protocol drives the fixed four-step authentication dialog the
// pipeline executes against the target login flow, and classifies its
// outcome.
package protocol

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/credcheck/pkg/config"
	"github.com/cuemby/credcheck/pkg/errs"
	"github.com/cuemby/credcheck/pkg/model"
)

// State is one node of the driver's state machine.
type State string

const (
	StateInit       State = "INIT"
	StateNavigate   State = "NAVIGATE"
	StateEmail      State = "EMAIL"
	StatePassword   State = "PASSWORD"
	StateVerifySkip State = "VERIFY_SKIP"
	StateDone       State = "DONE"
)

// FingerprintProvider supplies the opaque bio/rat fingerprint blobs the
// challenge endpoints expect, keyed on a correlation_id so repeated calls
// within one session return a consistent fingerprint.
type FingerprintProvider interface {
	Fingerprint(ctx context.Context, correlationID string) (bio, rat string, err error)
}

// PoWComputer solves a login challenge's proof-of-work puzzle. Session
// depends on this interface rather than *pow.ServiceClient directly so a
// caller can route fallback solves through a dedicated worker pool instead
// of the session's own goroutine.
type PoWComputer interface {
	Compute(ctx context.Context, mask, key string, seed int64) (string, error)
}

// Submitter performs the actual HTTP calls of the dialog. Splitting this
// out from Session lets tests substitute a fake target without standing up
// an HTTP server, and lets capture.go reuse the same session transport.
type Submitter interface {
	Navigate(ctx context.Context, s *Session) error
	Challenge(ctx context.Context, s *Session, field string) (token, mdata string, err error)
	Submit(ctx context.Context, s *Session, field, value, cres, token string) (*StepResult, error)
}

// StepResult is the raw outcome of one EMAIL/PASSWORD POST.
type StepResult struct {
	StatusCode  int
	FinalURL    string
	Body        string
	ActionToken string
}

// Session carries per-task state across the driver's states: its own
// cookie jar (never shared across tasks, per the concurrency model), the
// correlation_id minted at NAVIGATE, and the proxy assigned to this task.
type Session struct {
	Task          model.Task
	BaseURL       string
	HTTPClient    *http.Client
	CorrelationID string
	EmailToken    string
	Rules         config.Rules
	PoW           PoWComputer
	Fingerprint   FingerprintProvider
	Submitter     Submitter
}

// NewSession builds a Session with its own cookie jar and an http.Client
// whose transport routes through proxyURL, or the default transport if
// proxyURL is empty (direct fallback).
func NewSession(task model.Task, baseURL, proxyURL string, rules config.Rules, powClient PoWComputer, fp FingerprintProvider, submitter Submitter) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("protocol: build cookie jar: %w", err)
	}

	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("protocol: parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}

	return &Session{
		Task:        task,
		BaseURL:     baseURL,
		HTTPClient:  &http.Client{Jar: jar, Transport: transport, Timeout: 30 * time.Second},
		Rules:       rules,
		PoW:         powClient,
		Fingerprint: fp,
		Submitter:   submitter,
	}, nil
}

// Run satisfies worker.Runner, so a *Session built by a SessionFactory can
// be returned and run without the caller needing to know this package's
// driver entrypoint is a free function rather than a method.
func (s *Session) Run(ctx context.Context) (model.Result, error) {
	return Run(ctx, s)
}

// Run drives the state machine from INIT to DONE and returns the
// classified Result. The driver never retries a failed step itself; that
// is the Worker's responsibility.
func Run(ctx context.Context, s *Session) (model.Result, error) {
	started := time.Now()
	state := StateInit
	var lastStep *StepResult

	for state != StateDone {
		next, step, err := advance(ctx, s, state)
		if err != nil {
			return errorResult(s, started, err), nil
		}
		if step != nil {
			lastStep = step
		}
		state = next
	}

	status, errCode := classify(s, lastStep)
	result := model.Result{
		UserID:      s.Task.UserID,
		Password:    s.Task.Password,
		Status:      status,
		CheckedAtMs: time.Now().UnixMilli(),
		ProxyID:     s.Task.ProxyID,
		DurationMs:  time.Since(started).Milliseconds(),
		ErrorCode:   errCode,
	}
	if status == model.StatusValid {
		result.Capture = Capture(ctx, s)
	}
	return result, nil
}

// errorResult builds the ERROR result for a step failure. A task-timeout
// classification gets the fixed "TASK_TIMEOUT" code per §4.8; anything else
// is a PROTOCOL_ERROR reported with the upstream failure message itself.
func errorResult(s *Session, started time.Time, err error) model.Result {
	code := err.Error()
	if errs.ClassifyTaskError(err) == errs.TaskTimeout {
		code = string(errs.TaskTimeout)
	}
	return model.Result{
		UserID:      s.Task.UserID,
		Password:    s.Task.Password,
		Status:      model.StatusError,
		CheckedAtMs: time.Now().UnixMilli(),
		ProxyID:     s.Task.ProxyID,
		DurationMs:  time.Since(started).Milliseconds(),
		ErrorCode:   code,
	}
}

func advance(ctx context.Context, s *Session, state State) (State, *StepResult, error) {
	switch state {
	case StateInit:
		s.CorrelationID = uuid.NewString()
		return StateNavigate, nil, nil

	case StateNavigate:
		if err := s.Submitter.Navigate(ctx, s); err != nil {
			return StateDone, nil, fmt.Errorf("navigate: %w", err)
		}
		return StateEmail, nil, nil

	case StateEmail:
		step, err := s.doChallengeStep(ctx, "email", s.Task.UserID)
		if err != nil {
			return StateDone, nil, err
		}
		if step.StatusCode == http.StatusUnauthorized {
			return StateDone, step, nil
		}
		s.EmailToken = step.ActionToken
		return StatePassword, step, nil

	case StatePassword:
		step, err := s.doChallengeStep(ctx, "password", s.Task.Password)
		if err != nil {
			return StateDone, nil, err
		}
		if step.ActionToken != "" && requiresVerifySkip(step) {
			return StateVerifySkip, step, nil
		}
		return StateDone, step, nil

	case StateVerifySkip:
		step, err := s.Submitter.Submit(ctx, s, "code", "", "", s.EmailToken)
		if err != nil {
			return StateDone, nil, fmt.Errorf("verify_skip: %w", err)
		}
		return StateDone, step, nil
	}
	return StateDone, nil, nil
}

func requiresVerifySkip(step *StepResult) bool {
	return step.StatusCode != http.StatusUnauthorized && step.ActionToken != ""
}

func (s *Session) doChallengeStep(ctx context.Context, field, value string) (*StepResult, error) {
	token, mdata, err := s.Submitter.Challenge(ctx, s, field)
	if err != nil {
		return nil, fmt.Errorf("%s challenge: %w", field, err)
	}

	challenge, err := decodeChallenge(mdata)
	if err != nil {
		return nil, fmt.Errorf("%s challenge decode: %w", field, err)
	}

	cres, err := s.PoW.Compute(ctx, challenge.Mask, challenge.Key, challenge.Seed)
	if err != nil {
		return nil, fmt.Errorf("%s pow: %w", field, err)
	}

	step, err := s.Submitter.Submit(ctx, s, field, value, cres, token)
	if err != nil {
		return nil, fmt.Errorf("%s submit: %w", field, err)
	}
	if step.StatusCode != http.StatusUnauthorized && step.StatusCode >= 400 {
		return nil, fmt.Errorf("%s submit: unexpected status %d", field, step.StatusCode)
	}
	return step, nil
}

// classify implements §4.5's priority-ordered outcome classification.
func classify(s *Session, step *StepResult) (model.Status, string) {
	if step == nil {
		return model.StatusError, "no step result"
	}
	if step.StatusCode == http.StatusOK && strings.Contains(step.FinalURL, s.Rules.SuccessHost) && strings.Contains(step.FinalURL, "code=") {
		return model.StatusValid, ""
	}
	if step.StatusCode == http.StatusUnauthorized {
		return model.StatusInvalid, "401"
	}
	if containsAny(step.Body, s.Rules.BlockedTokens) {
		return model.StatusBlocked, "human_verification"
	}
	if containsAny(step.Body, s.Rules.InvalidTokens) {
		return model.StatusInvalid, "credentials_incorrect"
	}
	return model.StatusError, "unclassified"
}

func containsAny(body string, tokens []string) bool {
	for _, t := range tokens {
		if t != "" && strings.Contains(body, t) {
			return true
		}
	}
	return false
}
