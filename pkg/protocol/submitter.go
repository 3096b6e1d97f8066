package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPSubmitter is the production Submitter: it drives the real login
// endpoints over s.HTTPClient. Endpoint paths are relative to baseURL so
// the same implementation can point at a staging target in tests.
type HTTPSubmitter struct {
	BaseURL string
}

// NewHTTPSubmitter builds a Submitter targeting baseURL.
func NewHTTPSubmitter(baseURL string) *HTTPSubmitter {
	return &HTTPSubmitter{BaseURL: baseURL}
}

func (h *HTTPSubmitter) Navigate(ctx context.Context, s *Session) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+"/login", nil)
	if err != nil {
		return err
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	body, err := s.Rules.AuthorizeRequestJSON()
	if err != nil {
		return fmt.Errorf("authorize_request: %w", err)
	}
	initReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/authorize", bytes.NewReader(body))
	if err != nil {
		return err
	}
	initReq.Header.Set("Content-Type", "application/json")
	initResp, err := s.HTTPClient.Do(initReq)
	if err != nil {
		return err
	}
	defer initResp.Body.Close()
	io.Copy(io.Discard, initResp.Body)
	return nil
}

type challengeResponse struct {
	Token string `json:"token"`
	Mdata string `json:"mdata"`
}

func (h *HTTPSubmitter) Challenge(ctx context.Context, s *Session, field string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/challenge/"+field, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("X-Correlation-ID", s.CorrelationID)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var out challengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", err
	}
	return out.Token, out.Mdata, nil
}

type submitRequest struct {
	Field     string          `json:"credential_field"`
	Value     string          `json:"value"`
	Challenge submitChallenge `json:"challenge"`
	Bio       string          `json:"bio"`
	Rat       string          `json:"rat"`
}

type submitChallenge struct {
	Cres  string `json:"cres"`
	Token string `json:"token"`
}

type submitResponse struct {
	ActionToken string `json:"action_token"`
}

func (h *HTTPSubmitter) Submit(ctx context.Context, s *Session, field, value, cres, token string) (*StepResult, error) {
	var bio, rat string
	if s.Fingerprint != nil {
		var err error
		bio, rat, err = s.Fingerprint.Fingerprint(ctx, s.CorrelationID)
		if err != nil {
			return nil, fmt.Errorf("fingerprint: %w", err)
		}
	}

	payload, err := json.Marshal(submitRequest{
		Field:     field,
		Value:     value,
		Challenge: submitChallenge{Cres: cres, Token: token},
		Bio:       bio,
		Rat:       rat,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/"+field, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", s.CorrelationID)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out submitResponse
	_ = json.Unmarshal(bodyBytes, &out)

	return &StepResult{
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		Body:        string(bodyBytes),
		ActionToken: out.ActionToken,
	}, nil
}
