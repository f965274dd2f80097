package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/debrief"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// apiClient talks to the scene engine HTTP API.
type apiClient struct {
	client  *http.Client
	baseURL string
}

// scenarioOption is one selectable module/scenario pair.
type scenarioOption struct {
	ModuleID   string
	ModuleName string
	ScenarioID string
	Title      string
	MaxSteps   int
}

func (o scenarioOption) String() string {
	return fmt.Sprintf("%s: %s (%d steps)", o.ModuleName, o.Title, o.MaxSteps)
}

func (a *apiClient) testConnection() bool {
	resp, err := a.client.Get(a.baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func (a *apiClient) listScenarios() ([]scenarioOption, error) {
	var out struct {
		Modules []scenario.Module `json:"modules"`
	}
	if err := a.do(http.MethodGet, "/v1/modules", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	var opts []scenarioOption
	for _, m := range out.Modules {
		for _, s := range m.Scenarios {
			opts = append(opts, scenarioOption{
				ModuleID:   m.ID,
				ModuleName: m.Name,
				ScenarioID: s.ID,
				Title:      s.Title,
				MaxSteps:   s.MaxSteps,
			})
		}
	}
	return opts, nil
}

// StartSessionRequest matches the API request structure
type StartSessionRequest struct {
	PlayerProfile state.PlayerProfile `json:"player_profile"`
	ModuleID      string              `json:"module_id"`
	ScenarioID    string              `json:"scenario_id,omitempty"`
}

func (a *apiClient) startSession(profile state.PlayerProfile, opt scenarioOption) (*state.SessionView, error) {
	req := StartSessionRequest{
		PlayerProfile: profile,
		ModuleID:      opt.ModuleID,
		ScenarioID:    opt.ScenarioID,
	}
	var view state.SessionView
	if err := a.do(http.MethodPost, "/v1/sessions", req, http.StatusCreated, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (a *apiClient) submitTurn(id uuid.UUID, choice string) (*state.SessionView, error) {
	req := map[string]string{"player_choice": choice}
	var view state.SessionView
	if err := a.do(http.MethodPost, fmt.Sprintf("/v1/sessions/%s/turns", id), req, http.StatusOK, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (a *apiClient) retrySession(id uuid.UUID) (*state.SessionView, error) {
	var view state.SessionView
	if err := a.do(http.MethodPost, fmt.Sprintf("/v1/sessions/%s/retry", id), nil, http.StatusOK, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (a *apiClient) getDebrief(id uuid.UUID) (*debrief.Debrief, error) {
	var d debrief.Debrief
	if err := a.do(http.MethodGet, fmt.Sprintf("/v1/sessions/%s/debrief", id), nil, http.StatusOK, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (a *apiClient) do(method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("%s", errorResp.Error)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
