package jira

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	gojira "github.com/andygrunwald/go-jira"
)

const (
	DefaultMaxResults = 20
	searchPath        = "rest/api/3/search/jql"
	myselfPath        = "rest/api/3/myself"
)

var searchFields = []string{"summary", "status", "assignee", "priority", "created", "updated", "issuetype"}

var ErrNotConfigured = errors.New("jira integration is not configured")

// Config holds Jira Cloud credentials. BaseURL overrides https://<Domain>.
type Config struct {
	Domain     string
	Email      string
	APIToken   string
	ProjectKey string
	BaseURL    string
	Timeout    time.Duration
}

// Ticket is the flattened view of a Jira issue shown to users.
type Ticket struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Assignee string `json:"assignee"`
	Type     string `json:"type"`
	Created  string `json:"created"`
	Updated  string `json:"updated"`
	URL      string `json:"url"`
}

// SearchResult never carries a Go error; failures are reported in Error.
type SearchResult struct {
	Success bool     `json:"success"`
	Tickets []Ticket `json:"tickets"`
	Total   int      `json:"total"`
	JQL     string   `json:"jql,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// SearchOptions for SearchTickets. Empty JQL falls back to the project or a 30 day window.
type SearchOptions struct {
	JQL        string
	ProjectKey string
	MaxResults int
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

type searchResponse struct {
	Issues []gojira.Issue `json:"issues"`
	Total  int            `json:"total"`
}

// Client queries Jira Cloud through go-jira.
type Client struct {
	api        *gojira.Client
	cfg        Config
	browseBase string
	configErr  string
}

// NewClient never fails on missing credentials; SearchTickets reports them instead.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{cfg: cfg}
	switch {
	case cfg.Domain == "" && cfg.BaseURL == "":
		c.configErr = "JIRA_DOMAIN not configured"
		return c, nil
	case cfg.Email == "" || cfg.APIToken == "":
		c.configErr = "Jira credentials not configured (JIRA_EMAIL and JIRA_API_TOKEN required)"
		return c, nil
	}

	base := cfg.BaseURL
	if base == "" {
		base = "https://" + cfg.Domain
	}
	c.browseBase = strings.TrimRight(base, "/")

	transport := gojira.BasicAuthTransport{Username: cfg.Email, Password: cfg.APIToken}
	httpClient := transport.Client()
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient.Timeout = cfg.Timeout

	api, err := gojira.NewClient(httpClient, base)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}
	c.api = api
	return c, nil
}

// Enabled reports whether credentials were supplied.
func (c *Client) Enabled() bool { return c.api != nil }

// DefaultJQL builds the query used when the caller gives none.
func DefaultJQL(projectKey string) string {
	if projectKey != "" {
		return fmt.Sprintf("project = %s ORDER BY created DESC", projectKey)
	}
	return "created >= -30d ORDER BY created DESC"
}

// IssueKeysJQL selects specific issues.
func IssueKeysJQL(keys []string) string {
	if len(keys) == 1 {
		return fmt.Sprintf("key = %s", keys[0])
	}
	return fmt.Sprintf("key in (%s) ORDER BY created DESC", strings.Join(keys, ", "))
}

// SearchTickets runs a JQL search and flattens the issues.
func (c *Client) SearchTickets(ctx context.Context, opts SearchOptions) SearchResult {
	if !c.Enabled() {
		return SearchResult{Success: false, Tickets: []Ticket{}, Error: c.configErr}
	}

	jql := opts.JQL
	if jql == "" {
		project := opts.ProjectKey
		if project == "" {
			project = c.cfg.ProjectKey
		}
		jql = DefaultJQL(project)
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	log.Printf("[JiraClient] SearchTickets: JQL=%q MaxResults=%d", jql, maxResults)
	req, err := c.api.NewRequestWithContext(ctx, http.MethodPost, searchPath, searchRequest{
		JQL:        jql,
		MaxResults: maxResults,
		Fields:     searchFields,
	})
	if err != nil {
		return failed(fmt.Sprintf("Error querying Jira: %v", err))
	}
	req.Header.Set("Accept", "application/json")

	var out searchResponse
	resp, err := c.api.Do(req, &out)
	if err != nil {
		msg := describeError(resp, err)
		log.Printf("ERROR [JiraClient] SearchTickets: %s", msg)
		return failed(msg)
	}

	tickets := make([]Ticket, 0, len(out.Issues))
	for _, issue := range out.Issues {
		tickets = append(tickets, c.toTicket(issue))
	}
	total := out.Total
	if total == 0 {
		total = len(tickets)
	}
	log.Printf("[JiraClient] SearchTickets: %d issue(s) returned", len(tickets))
	return SearchResult{Success: true, Tickets: tickets, Total: total, JQL: jql}
}

// TestConnection calls /myself to verify the credentials.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("%w: %s", ErrNotConfigured, c.configErr)
	}
	req, err := c.api.NewRequestWithContext(ctx, http.MethodGet, myselfPath, nil)
	if err != nil {
		return "", err
	}
	var me gojira.User
	resp, err := c.api.Do(req, &me)
	if err != nil {
		return "", errors.New(describeError(resp, err))
	}
	return fmt.Sprintf("Connected to Jira as %s", me.DisplayName), nil
}

func (c *Client) toTicket(issue gojira.Issue) Ticket {
	t := Ticket{
		Key:      orDefault(issue.Key, "N/A"),
		Summary:  "No summary",
		Status:   "Unknown",
		Priority: "None",
		Assignee: "Unassigned",
		Type:     "Unknown",
		Created:  "N/A",
		Updated:  "N/A",
		URL:      fmt.Sprintf("%s/browse/%s", c.browseBase, issue.Key),
	}
	f := issue.Fields
	if f == nil {
		return t
	}
	t.Summary = orDefault(f.Summary, t.Summary)
	if f.Status != nil {
		t.Status = orDefault(f.Status.Name, t.Status)
	}
	if f.Priority != nil {
		t.Priority = orDefault(f.Priority.Name, t.Priority)
	}
	if f.Assignee != nil {
		t.Assignee = orDefault(f.Assignee.DisplayName, t.Assignee)
	}
	t.Type = orDefault(f.Type.Name, t.Type)
	if created := time.Time(f.Created); !created.IsZero() {
		t.Created = created.Format(time.RFC3339)
	}
	if updated := time.Time(f.Updated); !updated.IsZero() {
		t.Updated = updated.Format(time.RFC3339)
	}
	return t
}

func describeError(resp *gojira.Response, err error) string {
	if resp == nil || resp.Response == nil {
		return fmt.Sprintf("Error querying Jira: %v", err)
	}
	msg := fmt.Sprintf("Jira API error: %d", resp.StatusCode)
	var jerr *gojira.Error
	if errors.As(gojira.NewJiraError(resp, err), &jerr) {
		details := jerr.ErrorMessages
		for k, v := range jerr.Errors {
			details = append(details, k+": "+v)
		}
		if len(details) > 0 {
			msg += " - " + strings.Join(details, "; ")
		}
	}
	return msg
}

func failed(msg string) SearchResult {
	return SearchResult{Success: false, Tickets: []Ticket{}, Error: msg}
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
