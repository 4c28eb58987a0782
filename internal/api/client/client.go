package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/reporttrack/internal/alert"
	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/report"
	"github.com/reporttrack/internal/tracking"
)

const dateLayout = "2006-01-02"

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client from REPORTTRACK_API_URL and REPORTTRACK_TOKEN.
func NewClient() (*Client, error) {
	baseURL := os.Getenv("REPORTTRACK_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	token := os.Getenv("REPORTTRACK_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("REPORTTRACK_TOKEN environment variable is not set")
	}

	return New(baseURL, token), nil
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login exchanges credentials for a bearer token. The receiver's own token is not used.
func (c *Client) Login(username, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	data := map[string]string{"username": username, "password": password}
	if err := c.post("/api/v1/auth/login", nil, data, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Definitions

func (c *Client) ListDefinitions(frequency string, entityID uint, activeOnly bool) ([]models.ReportDefinition, error) {
	query := url.Values{}
	if frequency != "" {
		query.Set("frequency", frequency)
	}
	if entityID > 0 {
		query.Set("entity_id", strconv.FormatUint(uint64(entityID), 10))
	}
	if activeOnly {
		query.Set("active", "true")
	}

	var defs []models.ReportDefinition
	if err := c.get("/api/v1/definitions", query, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func (c *Client) GetDefinition(id string) (*models.ReportDefinition, error) {
	var def models.ReportDefinition
	if err := c.get("/api/v1/definitions/"+id, nil, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (c *Client) CreateDefinition(in tracking.DefinitionInput) (*models.ReportDefinition, error) {
	var def models.ReportDefinition
	if err := c.post("/api/v1/definitions", nil, in, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// GenerateInstances returns how many instances were created. Zero bounds use the server's default window.
func (c *Client) GenerateInstances(id string, from, to time.Time) (int, error) {
	var resp struct {
		Created int `json:"created"`
	}
	if err := c.post("/api/v1/definitions/"+id+"/generate", rangeQuery(from, to), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Created, nil
}

// Instances

type InstanceQuery struct {
	DefinitionID uint
	EntityID     uint
	Status       string
	Period       string
	From         time.Time
	To           time.Time
}

func (q InstanceQuery) values() url.Values {
	query := rangeQuery(q.From, q.To)
	if q.DefinitionID > 0 {
		query.Set("definition_id", strconv.FormatUint(uint64(q.DefinitionID), 10))
	}
	if q.EntityID > 0 {
		query.Set("entity_id", strconv.FormatUint(uint64(q.EntityID), 10))
	}
	if q.Status != "" {
		query.Set("status", q.Status)
	}
	if q.Period != "" {
		query.Set("period", q.Period)
	}
	return query
}

func (c *Client) ListInstances(q InstanceQuery) ([]models.ReportInstance, error) {
	var instances []models.ReportInstance
	if err := c.get("/api/v1/instances", q.values(), &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

func (c *Client) PendingInstances() ([]models.ReportInstance, error) {
	var instances []models.ReportInstance
	if err := c.get("/api/v1/instances/pending", nil, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

func (c *Client) OverdueInstances() ([]models.ReportInstance, error) {
	var instances []models.ReportInstance
	if err := c.get("/api/v1/instances/overdue", nil, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

func (c *Client) SubmitLink(id, link, notes string) (*models.ReportInstance, error) {
	data := map[string]string{
		"url":   link,
		"notes": notes,
	}
	var inst models.ReportInstance
	if err := c.post("/api/v1/instances/"+id+"/submit-link", nil, data, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// ExportInstances downloads the xlsx report for the range into output.
func (c *Client) ExportInstances(from, to time.Time, output string) error {
	resp, err := c.doRequest(http.MethodGet, "/api/v1/instances/export", rangeQuery(from, to), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %v", err)
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

// Alerts

func (c *Client) ListAlerts(unreadOnly bool, limit int) ([]models.Alert, error) {
	query := url.Values{}
	if unreadOnly {
		query.Set("unread", "true")
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var alerts []models.Alert
	if err := c.get("/api/v1/alerts", query, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) MarkAlertRead(id string) error {
	return c.send(http.MethodPut, "/api/v1/alerts/"+id+"/read", nil, nil, nil)
}

func (c *Client) MarkAllAlertsRead() (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	if err := c.send(http.MethodPut, "/api/v1/alerts/read-all", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (c *Client) RunSweep() (*alert.SweepResult, error) {
	var result alert.SweepResult
	if err := c.post("/api/v1/alerts/sweep", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ManualAlert(instanceID, alertTypeID uint) ([]models.Alert, error) {
	data := map[string]uint{
		"instance_id":   instanceID,
		"alert_type_id": alertTypeID,
	}
	var alerts []models.Alert
	if err := c.post("/api/v1/alerts/manual", nil, data, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Statistics

func (c *Client) Summary(from, to time.Time) (*report.Summary, error) {
	var summary report.Summary
	if err := c.get("/api/v1/stats/summary", rangeQuery(from, to), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) Trend(months int) ([]report.TrendPoint, error) {
	query := url.Values{}
	query.Set("months", strconv.Itoa(months))

	var trend []report.TrendPoint
	if err := c.get("/api/v1/stats/trend", query, &trend); err != nil {
		return nil, err
	}
	return trend, nil
}

func (c *Client) TopOffenders(by string, n int) ([]report.Offender, error) {
	query := url.Values{}
	query.Set("n", strconv.Itoa(n))
	if by != "" {
		query.Set("by", by)
	}

	var top []report.Offender
	if err := c.get("/api/v1/stats/top-offenders", query, &top); err != nil {
		return nil, err
	}
	return top, nil
}

func rangeQuery(from, to time.Time) url.Values {
	query := url.Values{}
	if !from.IsZero() {
		query.Set("from", from.Format(dateLayout))
	}
	if !to.IsZero() {
		query.Set("to", to.Format(dateLayout))
	}
	return query
}

func (c *Client) get(endpoint string, query url.Values, v interface{}) error {
	return c.send(http.MethodGet, endpoint, query, nil, v)
}

func (c *Client) post(endpoint string, query url.Values, data, v interface{}) error {
	return c.send(http.MethodPost, endpoint, query, data, v)
}

// send encodes data as the JSON body and decodes the response into v when v is non-nil.
func (c *Client) send(method, endpoint string, query url.Values, data, v interface{}) error {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %v", err)
		}
		body = bytes.NewReader(jsonData)
	}

	resp, err := c.doRequest(method, endpoint, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

func (c *Client) doRequest(method, endpoint string, query url.Values, body io.Reader) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %v", err)
	}
	u.Path = path.Join(u.Path, endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return resp, nil
}
