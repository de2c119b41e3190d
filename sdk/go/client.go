package hutrackersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal hutracker HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type WorkItem struct {
	ID               string  `json:"id"`
	InitiativeID     string  `json:"initiative_id"`
	Title            string  `json:"title"`
	State            string  `json:"state"`
	AssignedTo       string  `json:"assigned_to,omitempty"`
	OriginalEstimate float64 `json:"original_estimate"`
	CompletedWork    float64 `json:"completed_work"`
	RemainingWork    float64 `json:"remaining_work"`
	StartDate        string  `json:"start_date,omitempty"`
	DueDate          string  `json:"due_date,omitempty"`
	CompletionDate   string  `json:"completion_date,omitempty"`
	Initiative       string  `json:"initiative"`
	Sprint           string  `json:"sprint"`
	IsAdditional     bool    `json:"is_additional"`
}

type Initiative struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	StartDate  string     `json:"start_date,omitempty"`
	DueDate    string     `json:"due_date,omitempty"`
	SprintDays int        `json:"sprint_days"`
	Stories    []WorkItem `json:"stories"`
}

// Sprint is one row of an initiative summary.
type Sprint struct {
	Number           int     `json:"number"`
	Start            string  `json:"start"`
	End              string  `json:"end"`
	ProjectedEnd     string  `json:"projected_end"`
	ExpectedHours    float64 `json:"expected_hours"`
	CompletedHours   float64 `json:"completed_hours"`
	DebtHours        float64 `json:"debt_hours"`
	CompletedPercent float64 `json:"completed_percent"`
	DebtPercent      float64 `json:"debt_percent"`
}

// Summary is the schedule rollup of an initiative (partial).
type Summary struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	TotalOriginal     float64  `json:"total_original"`
	TotalCompleted    float64  `json:"total_completed"`
	TotalRemaining    float64  `json:"total_remaining"`
	TotalSprints      int      `json:"total_sprints"`
	CompletionPercent float64  `json:"completion_percent"`
	HasDelay          bool     `json:"has_delay"`
	ProjectedDelay    int      `json:"projected_delay"`
	Sprints           []Sprint `json:"sprints"`
}

type BurndownPoint struct {
	Index     int      `json:"index"`
	Date      string   `json:"date"`
	Baseline  *float64 `json:"baseline"`
	Projected float64  `json:"projected"`
	Status    string   `json:"status,omitempty"`
}

// Burndown is the projected curve (partial).
type Burndown struct {
	TotalDays     int             `json:"total_days"`
	DaysElapsed   int             `json:"days_elapsed"`
	Velocity      float64         `json:"velocity"`
	ProjectedDays int             `json:"projected_days"`
	Delay         int             `json:"delay"`
	Points        []BurndownPoint `json:"points"`
}

type Report struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	ElapsedDays int     `json:"elapsed_days"`
	DelayHours  float64 `json:"delay_hours"`
	DelayDays   float64 `json:"delay_days"`
	Deviation   string  `json:"deviation"`
}

type Totals struct {
	Initiative string  `json:"initiative"`
	Stories    int     `json:"stories"`
	Original   float64 `json:"original"`
	Completed  float64 `json:"completed"`
	Remaining  float64 `json:"remaining"`
}

// Event represents a log entry.
type Event struct {
	ID           int64          `json:"id"`
	TS           string         `json:"ts"`
	Type         string         `json:"type"`
	InitiativeID string         `json:"initiative_id"`
	EntityKind   string         `json:"entity_kind"`
	EntityID     string         `json:"entity_id"`
	ActorID      string         `json:"actor_id"`
	Payload      map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateInitiative(ctx context.Context, name, startDate, dueDate string, sprintDays int) (Initiative, error) {
	body := map[string]any{"name": name}
	if startDate != "" {
		body["start_date"] = startDate
	}
	if dueDate != "" {
		body["due_date"] = dueDate
	}
	if sprintDays > 0 {
		body["sprint_days"] = sprintDays
	}
	var resp Initiative
	err := c.do(ctx, http.MethodPost, "initiatives", body, &resp)
	return resp, err
}

func (c *Client) ListInitiatives(ctx context.Context) ([]Initiative, error) {
	var resp []Initiative
	err := c.do(ctx, http.MethodGet, "initiatives", nil, &resp)
	return resp, err
}

// GetInitiative accepts an initiative id or name.
func (c *Client) GetInitiative(ctx context.Context, ref string) (Initiative, error) {
	var resp Initiative
	err := c.do(ctx, http.MethodGet, initiativePath(ref, ""), nil, &resp)
	return resp, err
}

func (c *Client) EditInitiative(ctx context.Context, ref, field string, value any) (Initiative, error) {
	var resp Initiative
	err := c.do(ctx, http.MethodPatch, initiativePath(ref, ""), map[string]any{"field": field, "value": value}, &resp)
	return resp, err
}

func (c *Client) DeleteInitiative(ctx context.Context, ref string) error {
	return c.do(ctx, http.MethodDelete, initiativePath(ref, ""), nil, nil)
}

// AddItem creates a story from a record keyed by labels, camelCase or
// snake_case names.
func (c *Client) AddItem(ctx context.Context, ref string, record map[string]any) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, initiativePath(ref, "items"), record, &resp)
	return resp, err
}

func (c *Client) EditItem(ctx context.Context, id, field string, value any) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodPatch, "items/"+url.PathEscape(id), map[string]any{"field": field, "value": value}, &resp)
	return resp, err
}

func (c *Client) RemoveItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "items/"+url.PathEscape(id), nil, nil)
}

// ImportItems replaces an initiative's stories with rows.
func (c *Client) ImportItems(ctx context.Context, ref string, rows any) ([]WorkItem, error) {
	var resp struct {
		Items []WorkItem `json:"items"`
	}
	err := c.do(ctx, http.MethodPut, initiativePath(ref, "items"), rows, &resp)
	return resp.Items, err
}

// Summary returns the rollup as of today; a zero today uses the server clock.
func (c *Client) Summary(ctx context.Context, ref string, today time.Time) (Summary, error) {
	var resp Summary
	err := c.do(ctx, http.MethodGet, withQuery(initiativePath(ref, "summary"), todayQuery(today)), nil, &resp)
	return resp, err
}

func (c *Client) Burndown(ctx context.Context, ref, sprint string, baseline *float64, today time.Time) (Burndown, error) {
	q := todayQuery(today)
	if sprint != "" {
		q.Set("sprint", sprint)
	}
	if baseline != nil {
		q.Set("baseline", strconv.FormatFloat(*baseline, 'f', -1, 64))
	}
	var resp Burndown
	err := c.do(ctx, http.MethodGet, withQuery(initiativePath(ref, "burndown"), q), nil, &resp)
	return resp, err
}

func (c *Client) Reports(ctx context.Context, ref string, today time.Time) ([]Report, error) {
	var resp []Report
	err := c.do(ctx, http.MethodGet, withQuery(initiativePath(ref, "reports"), todayQuery(today)), nil, &resp)
	return resp, err
}

func (c *Client) Totals(ctx context.Context) ([]Totals, error) {
	var resp []Totals
	err := c.do(ctx, http.MethodGet, "totals", nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, initiative string, limit int) ([]Event, error) {
	q := url.Values{}
	if initiative != "" {
		q.Set("initiative", initiative)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func initiativePath(ref, sub string) string {
	p := "initiatives/" + url.PathEscape(ref)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func todayQuery(today time.Time) url.Values {
	q := url.Values{}
	if !today.IsZero() {
		q.Set("today", today.Format("2006-01-02"))
	}
	return q
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
