package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)

type FarmOperationsClient interface {
	GetZones(ctx context.Context) ([]Zone, error)
	GetZone(ctx context.Context, zoneID string) (Zone, error)
	GetRecipes(ctx context.Context) ([]Recipe, error)

	StartExecution(ctx context.Context, zoneID, recipeID string) (Execution, error)
	GetExecution(ctx context.Context, executionID string) (Execution, error)
	AdvanceExecution(ctx context.Context, executionID, notes string) (Execution, error)
	AbortExecution(ctx context.Context, executionID, reason string) (Execution, error)

	GetEquipment(ctx context.Context, zoneID string) ([]Equipment, error)
	TurnOn(ctx context.Context, equipmentID string) (Command, error)
	TurnOff(ctx context.Context, equipmentID string) (Command, error)
	SetValue(ctx context.Context, equipmentID string, value int) (Command, error)

	GetAlerts(ctx context.Context, status types.AlertStatus) ([]Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID string) (Alert, error)

	Close(ctx context.Context)
}

type farmClient struct {
	url        string
	clientcfg  *clientcredentials.Config
	httpClient http.Client
}

var tracer = otel.Tracer("farm-operations-client")

// New returns a client that authenticates against oauthTokenURL with the client
// credentials flow. A token is fetched up front to fail early on bad credentials.
func New(ctx context.Context, farmOpsURL, oauthTokenURL, oauthClientID, oauthClientSecret string) (FarmOperationsClient, error) {
	oauthConfig := &clientcredentials.Config{
		ClientID:     oauthClientID,
		ClientSecret: oauthClientSecret,
		TokenURL:     oauthTokenURL,
	}

	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(httpTransport),
		Timeout:   10 * time.Second,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	token, err := oauthConfig.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get client credentials from %s: %w", oauthConfig.TokenURL, err)
	}

	if !token.Valid() {
		return nil, fmt.Errorf("an invalid token was returned from %s", oauthTokenURL)
	}

	return &farmClient{
		url:        strings.TrimSuffix(farmOpsURL, "/"),
		clientcfg:  oauthConfig,
		httpClient: *httpClient,
	}, nil
}

func (c *farmClient) GetZones(ctx context.Context) ([]Zone, error) {
	zones := []Zone{}
	err := c.do(ctx, "get-zones", http.MethodGet, "/api/v0/zones", nil, &zones)
	return zones, err
}

func (c *farmClient) GetZone(ctx context.Context, zoneID string) (Zone, error) {
	zone := Zone{}
	err := c.do(ctx, "get-zone", http.MethodGet, "/api/v0/zones/"+url.PathEscape(zoneID), nil, &zone)
	return zone, err
}

func (c *farmClient) GetRecipes(ctx context.Context) ([]Recipe, error) {
	recipes := []Recipe{}
	err := c.do(ctx, "get-recipes", http.MethodGet, "/api/v0/recipes", nil, &recipes)
	return recipes, err
}

func (c *farmClient) StartExecution(ctx context.Context, zoneID, recipeID string) (Execution, error) {
	body := map[string]string{"zoneId": zoneID, "recipeId": recipeID}

	execution := Execution{}
	err := c.do(ctx, "start-execution", http.MethodPost, "/api/v0/executions", body, &execution)
	return execution, err
}

func (c *farmClient) GetExecution(ctx context.Context, executionID string) (Execution, error) {
	execution := Execution{}
	err := c.do(ctx, "get-execution", http.MethodGet, "/api/v0/executions/"+url.PathEscape(executionID), nil, &execution)
	return execution, err
}

func (c *farmClient) AdvanceExecution(ctx context.Context, executionID, notes string) (Execution, error) {
	execution := Execution{}
	err := c.do(ctx, "advance-execution", http.MethodPost, "/api/v0/executions/"+url.PathEscape(executionID)+"/advance", map[string]string{"notes": notes}, &execution)
	return execution, err
}

func (c *farmClient) AbortExecution(ctx context.Context, executionID, reason string) (Execution, error) {
	execution := Execution{}
	err := c.do(ctx, "abort-execution", http.MethodPost, "/api/v0/executions/"+url.PathEscape(executionID)+"/abort", map[string]string{"reason": reason}, &execution)
	return execution, err
}

func (c *farmClient) GetEquipment(ctx context.Context, zoneID string) ([]Equipment, error) {
	path := "/api/v0/equipment"
	if zoneID != "" {
		path += "?zoneId=" + url.QueryEscape(zoneID)
	}

	equipment := []Equipment{}
	err := c.do(ctx, "get-equipment", http.MethodGet, path, nil, &equipment)
	return equipment, err
}

func (c *farmClient) TurnOn(ctx context.Context, equipmentID string) (Command, error) {
	cmd := Command{}
	err := c.do(ctx, "turn-on", http.MethodPost, "/api/v0/equipment/"+url.PathEscape(equipmentID)+"/on", nil, &cmd)
	return cmd, err
}

func (c *farmClient) TurnOff(ctx context.Context, equipmentID string) (Command, error) {
	cmd := Command{}
	err := c.do(ctx, "turn-off", http.MethodPost, "/api/v0/equipment/"+url.PathEscape(equipmentID)+"/off", nil, &cmd)
	return cmd, err
}

func (c *farmClient) SetValue(ctx context.Context, equipmentID string, value int) (Command, error) {
	cmd := Command{}
	err := c.do(ctx, "set-value", http.MethodPost, "/api/v0/equipment/"+url.PathEscape(equipmentID)+"/value", map[string]int{"value": value}, &cmd)
	return cmd, err
}

func (c *farmClient) GetAlerts(ctx context.Context, status types.AlertStatus) ([]Alert, error) {
	path := "/api/v0/alerts"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}

	alerts := []Alert{}
	err := c.do(ctx, "get-alerts", http.MethodGet, path, nil, &alerts)
	return alerts, err
}

func (c *farmClient) AcknowledgeAlert(ctx context.Context, alertID string) (Alert, error) {
	alert := Alert{}
	err := c.do(ctx, "acknowledge-alert", http.MethodPatch, "/api/v0/alerts/"+url.PathEscape(alertID)+"/acknowledge", nil, &alert)
	return alert, err
}

func (c *farmClient) Close(ctx context.Context) {
	c.httpClient.CloseIdleConnections()
}

func (c *farmClient) do(ctx context.Context, name, method, path string, body any, result any) error {
	var err error
	ctx, span := tracer.Start(ctx, name)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.GetFromContext(ctx)

	var reqBody io.Reader
	if body != nil {
		b, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			err = fmt.Errorf("failed to marshal request body: %w", marshalErr)
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reqBody)
	if err != nil {
		err = fmt.Errorf("failed to create http request: %w", err)
		return err
	}

	req.Header.Add("Accept", "application/json")
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	token, err := c.clientcfg.Token(context.WithValue(ctx, oauth2.HTTPClient, &c.httpClient))
	if err != nil {
		err = fmt.Errorf("failed to get client credentials from %s: %w", c.clientcfg.TokenURL, err)
		return err
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("request to %s failed: %w", path, err)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %w", err)
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		err = statusError(resp.StatusCode, respBody)
		log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("request failed")
		return err
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}

	err = json.Unmarshal(respBody, &envelope)
	if err != nil {
		err = fmt.Errorf("failed to unmarshal response body: %w", err)
		return err
	}

	err = json.Unmarshal(envelope.Data, result)
	if err != nil {
		err = fmt.Errorf("failed to unmarshal response data: %w", err)
	}

	return err
}

func statusError(code int, body []byte) error {
	apiErr := struct {
		Message string `json:"message"`
	}{}
	json.Unmarshal(body, &apiErr)

	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, apiErr.Message)
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message)
	}

	return fmt.Errorf("request failed with status code %d: %s", code, apiErr.Message)
}

type Zone struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organizationId"`
	Name           string           `json:"name"`
	ZoneNumber     string           `json:"zoneNumber,omitempty"`
	ActiveRecipeID *string          `json:"activeRecipeId,omitempty"`
	CurrentStage   int              `json:"currentStage"`
	Status         types.ZoneStatus `json:"status"`
	PlantCount     int              `json:"plantCount"`
}

type Recipe struct {
	ID            string         `json:"id"`
	CropID        string         `json:"cropId"`
	CropName      string         `json:"cropName"`
	CropType      types.CropType `json:"cropType"`
	Version       string         `json:"version"`
	IsPublic      bool           `json:"isPublic"`
	TotalDuration int            `json:"totalDuration"`
	Stages        []types.Stage  `json:"stages"`
}

type Execution struct {
	ID           string                `json:"id"`
	ZoneID       string                `json:"zoneId"`
	RecipeID     string                `json:"recipeId"`
	BatchID      *string               `json:"batchId,omitempty"`
	Status       types.ExecutionStatus `json:"status"`
	CurrentStage int                   `json:"currentStage"`
	StartedAt    *time.Time            `json:"startedAt,omitempty"`
}

type Equipment struct {
	ID           string                `json:"id"`
	ZoneID       string                `json:"zoneId"`
	DeviceID     string                `json:"deviceId"`
	Name         string                `json:"name"`
	Type         types.EquipmentType   `json:"type"`
	Status       types.EquipmentStatus `json:"status"`
	Mode         types.Mode            `json:"mode"`
	CurrentValue float64               `json:"currentValue"`
	IsActive     bool                  `json:"isActive"`
}

type Command struct {
	ID          string              `json:"id"`
	EquipmentID string              `json:"equipmentId"`
	CommandType types.CommandType   `json:"commandType"`
	Value       *int                `json:"value,omitempty"`
	Status      types.CommandStatus `json:"status"`
}

type Alert struct {
	ID       string            `json:"id"`
	Type     types.AlertType   `json:"type"`
	Severity types.Severity    `json:"severity"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Status   types.AlertStatus `json:"status"`
}
