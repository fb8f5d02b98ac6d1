package effectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v69/github"

	"github.com/Wikid82/aegis/internal/util"
)

// TicketRequest is the action data of a CreateTicket suggestion.
type TicketRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// Ticket identifies a ticket in the backing system.
type Ticket struct {
	Ref string `json:"ref"`
	URL string `json:"url,omitempty"`
}

// TicketBackend opens and closes tickets in an external system.
type TicketBackend interface {
	Open(ctx context.Context, req TicketRequest) (Ticket, error)
	Close(ctx context.Context, ref, comment string) error
}

// CreateTicket opens a ticket. Its compensator closes the ticket again, which
// is only registered as a rollback when reversibility is enabled for the type.
type CreateTicket struct {
	backend TicketBackend
}

func NewCreateTicket(backend TicketBackend) *CreateTicket {
	return &CreateTicket{backend: backend}
}

func parseTicket(data json.RawMessage) (TicketRequest, error) {
	var req TicketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode create_ticket data: %w", err)
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return req, errors.New("title is required")
	}
	return req, nil
}

func (c *CreateTicket) Validate(data json.RawMessage) error {
	_, err := parseTicket(data)
	return err
}

func (c *CreateTicket) Execute(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	req, err := parseTicket(data)
	if err != nil {
		return nil, nil, err
	}
	if c.backend == nil {
		return nil, nil, errors.New("no ticket backend configured")
	}
	ticket, err := c.backend.Open(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	after, _ := json.Marshal(ticket)
	return json.RawMessage(`{}`), after, nil
}

func (c *CreateTicket) Rollback(ctx context.Context, before, after json.RawMessage) error {
	if c.backend == nil {
		return errors.New("no ticket backend configured")
	}
	var ticket Ticket
	if err := json.Unmarshal(after, &ticket); err != nil || ticket.Ref == "" {
		return errors.New("after state has no ticket ref")
	}
	return c.backend.Close(ctx, ticket.Ref, "Closed: remediation action rolled back")
}

// WebhookTickets posts ticket operations as JSON to a ticketing webhook.
type WebhookTickets struct {
	url    string
	client *http.Client
}

// NewWebhookTickets validates url and returns a webhook backend.
func NewWebhookTickets(url string) (*WebhookTickets, error) {
	if _, err := util.ValidateWebhookURL(url, true); err != nil {
		return nil, fmt.Errorf("ticket webhook: %w", err)
	}
	return &WebhookTickets{url: url, client: &http.Client{Timeout: 15 * time.Second}}, nil
}

type webhookTicketCall struct {
	Operation string         `json:"operation"`
	Ticket    *TicketRequest `json:"ticket,omitempty"`
	Ref       string         `json:"ref,omitempty"`
	Comment   string         `json:"comment,omitempty"`
}

func (w *WebhookTickets) Open(ctx context.Context, req TicketRequest) (Ticket, error) {
	var ticket Ticket
	body, err := w.post(ctx, webhookTicketCall{Operation: "open", Ticket: &req})
	if err != nil {
		return ticket, err
	}
	if err := json.Unmarshal(body, &ticket); err != nil {
		return ticket, fmt.Errorf("decode ticket response: %w", err)
	}
	if ticket.Ref == "" {
		return ticket, errors.New("ticket response has no ref")
	}
	return ticket, nil
}

func (w *WebhookTickets) Close(ctx context.Context, ref, comment string) error {
	_, err := w.post(ctx, webhookTicketCall{Operation: "close", Ref: ref, Comment: comment})
	return err
}

func (w *WebhookTickets) post(ctx context.Context, call webhookTicketCall) ([]byte, error) {
	payload, err := json.Marshal(call)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticket webhook %s: %w", call.Operation, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ticket webhook %s: status %d: %s", call.Operation, resp.StatusCode, util.Truncate(util.SanitizeForLog(string(body)), 200))
	}
	return body, nil
}

// GitHubIssues files tickets as issues in one repository.
type GitHubIssues struct {
	client      *github.Client
	owner, repo string
}

// NewGitHubIssues returns a backend for repository "owner/name".
func NewGitHubIssues(token, repository string) (*GitHubIssues, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("github repository must be owner/name, got %q", repository)
	}
	return &GitHubIssues{client: github.NewClient(nil).WithAuthToken(token), owner: owner, repo: repo}, nil
}

func (g *GitHubIssues) Open(ctx context.Context, req TicketRequest) (Ticket, error) {
	body := req.Description
	if req.Severity != "" {
		body = fmt.Sprintf("**Severity:** %s\n\n%s", req.Severity, body)
	}
	issue := &github.IssueRequest{Title: &req.Title, Body: &body}
	if len(req.Labels) > 0 {
		labels := append([]string(nil), req.Labels...)
		issue.Labels = &labels
	}
	created, _, err := g.client.Issues.Create(ctx, g.owner, g.repo, issue)
	if err != nil {
		return Ticket{}, fmt.Errorf("create github issue: %w", err)
	}
	return Ticket{Ref: strconv.Itoa(created.GetNumber()), URL: created.GetHTMLURL()}, nil
}

func (g *GitHubIssues) Close(ctx context.Context, ref, comment string) error {
	number, err := strconv.Atoi(ref)
	if err != nil {
		return fmt.Errorf("invalid issue number %q", ref)
	}
	if comment != "" {
		if _, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, number, &github.IssueComment{Body: &comment}); err != nil {
			return fmt.Errorf("comment on github issue %d: %w", number, err)
		}
	}
	if _, _, err := g.client.Issues.Edit(ctx, g.owner, g.repo, number, &github.IssueRequest{State: github.String("closed")}); err != nil {
		return fmt.Errorf("close github issue %d: %w", number, err)
	}
	return nil
}
