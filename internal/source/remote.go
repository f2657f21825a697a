package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/config"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/sla"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// Client talks to the remote service-desk HTTP API. It implements
// PolicySource, TicketSource, and ActionSink. Reads are retried with
// exponential backoff; mutations are attempted once.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries uint64
	logger     *zap.Logger
}

// NewClient builds a remote client from configuration.
func NewClient(cfg config.RemoteConfig, logger *zap.Logger) *Client {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.APIToken,
		httpClient: &http.Client{Timeout: cfg.RemoteTimeout()},
		maxRetries: uint64(retries),
		logger:     logger,
	}
}

// ---- wire formats ----

type policyPayload struct {
	ID                    string               `json:"id"`
	Name                  string               `json:"name"`
	Description           string               `json:"description"`
	Priority              string               `json:"priority"`
	ResponseTargetMinutes int                  `json:"response_target_minutes"`
	ResolutionTargetHours int                  `json:"resolution_target_hours"`
	BusinessHoursOnly     bool                 `json:"business_hours_only"`
	EscalationRules       []escalationRulePayl `json:"escalation_rules"`
	AlertRules            []alertRulePayl      `json:"alert_rules"`
	Active                bool                 `json:"active"`
	CreatedAt             string               `json:"created_at"`
	UpdatedAt             string               `json:"updated_at"`
}

type escalationRulePayl struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	TriggerAfterMinutes  int      `json:"trigger_after_minutes"`
	EscalateToRole       string   `json:"escalate_to_role"`
	EscalateToUsers      []string `json:"escalate_to_users"`
	NotificationTemplate string   `json:"notification_template"`
	Actions              []string `json:"actions"`
	MinSeverity          string   `json:"min_severity"`
	Active               bool     `json:"active"`
}

type alertRulePayl struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Condition            string   `json:"condition"`
	Severity             string   `json:"severity"`
	NotificationChannels []string `json:"notification_channels"`
	Active               bool     `json:"active"`
	CooldownMinutes      int      `json:"cooldown_minutes"`
}

type ticketPayload struct {
	ID              string            `json:"id"`
	Number          string            `json:"number"`
	Subject         string            `json:"subject"`
	Status          string            `json:"status"`
	Priority        string            `json:"priority"`
	Category        string            `json:"category"`
	CustomerTier    string            `json:"customer_tier"`
	CreatedAt       string            `json:"created_at"`
	FirstResponseAt string            `json:"first_response_at"`
	ResolvedAt      string            `json:"resolved_at"`
	Assignee        *technicianRefPay `json:"assignee"`
}

type technicianRefPay struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	OpenTickets   int    `json:"open_tickets"`
	MaxConcurrent int    `json:"max_concurrent"`
}

type technicianPayload struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Active        bool   `json:"active"`
	OpenTickets   int    `json:"open_tickets"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// ---- PolicySource ----

// FetchPolicies retrieves all service-level policies.
func (c *Client) FetchPolicies(ctx context.Context) ([]domain.ServiceLevelPolicy, error) {
	var resp struct {
		Data []policyPayload `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/v1/sla/policies", nil, &resp); err != nil {
		return nil, apperrors.NewDataSourceError("policy source", err)
	}
	policies := make([]domain.ServiceLevelPolicy, 0, len(resp.Data))
	for _, raw := range resp.Data {
		policies = append(policies, toPolicy(raw))
	}
	return policies, nil
}

// FetchPolicyByPriority retrieves the policy for one priority tier.
func (c *Client) FetchPolicyByPriority(ctx context.Context, priority domain.Priority) (*domain.ServiceLevelPolicy, error) {
	query := url.Values{"priority": {string(priority)}}
	var resp struct {
		Data []policyPayload `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/v1/sla/policies", query, &resp); err != nil {
		return nil, apperrors.NewDataSourceError("policy source", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperrors.NewNotFound("policy", map[string]any{"priority": string(priority)})
	}
	policy := toPolicy(resp.Data[0])
	return &policy, nil
}

// ---- TicketSource ----

// FetchTickets retrieves ticket snapshots matching the filter.
func (c *Client) FetchTickets(ctx context.Context, filter TicketFilter) ([]domain.TicketSnapshot, error) {
	query := url.Values{}
	if filter.ID != "" {
		query.Set("id", filter.ID)
	}
	if filter.ActiveOnly {
		query.Set("active", "true")
	}
	if filter.Priority != nil {
		query.Set("priority", string(*filter.Priority))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	var resp struct {
		Data []ticketPayload `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/v1/tickets", query, &resp); err != nil {
		return nil, apperrors.NewDataSourceError("ticket source", err)
	}

	tickets := make([]domain.TicketSnapshot, 0, len(resp.Data))
	for _, raw := range resp.Data {
		tickets = append(tickets, c.toTicket(raw))
	}
	return tickets, nil
}

// FetchTechnicians retrieves the technician roster.
func (c *Client) FetchTechnicians(ctx context.Context) ([]domain.Technician, error) {
	var resp struct {
		Data []technicianPayload `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/v1/technicians", nil, &resp); err != nil {
		return nil, apperrors.NewDataSourceError("user source", err)
	}
	technicians := make([]domain.Technician, 0, len(resp.Data))
	for _, raw := range resp.Data {
		technicians = append(technicians, domain.Technician{
			ID:            raw.ID,
			Name:          raw.Name,
			Email:         raw.Email,
			Role:          raw.Role,
			Active:        raw.Active,
			OpenTickets:   raw.OpenTickets,
			MaxConcurrent: raw.MaxConcurrent,
		})
	}
	return technicians, nil
}

// ---- ActionSink ----

// AddComment appends a comment to the ticket, optionally mentioning users.
func (c *Client) AddComment(ctx context.Context, ticketID, text string, mentions []string, internal bool) (string, error) {
	body := map[string]any{
		"text":     text,
		"mentions": mentions,
		"internal": internal,
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/api/v1/tickets/"+url.PathEscape(ticketID)+"/comments", body, &resp); err != nil {
		return "", apperrors.NewActionError("add_comment", err)
	}
	return resp.Data.ID, nil
}

// UpdatePriority sets the ticket priority.
func (c *Client) UpdatePriority(ctx context.Context, ticketID string, priority domain.Priority) error {
	body := map[string]any{"priority": string(priority)}
	if err := c.postJSON(ctx, "/api/v1/tickets/"+url.PathEscape(ticketID)+"/priority", body, nil); err != nil {
		return apperrors.NewActionError("update_priority", err)
	}
	return nil
}

// Reassign moves the ticket to a new assignee.
func (c *Client) Reassign(ctx context.Context, ticketID, newAssigneeID, reason string) error {
	body := map[string]any{
		"assignee_id": newAssigneeID,
		"reason":      reason,
	}
	if err := c.postJSON(ctx, "/api/v1/tickets/"+url.PathEscape(ticketID)+"/assignee", body, nil); err != nil {
		return apperrors.NewActionError("reassign_ticket", err)
	}
	return nil
}

// Notify sends a message to a recipient over the requested channel.
func (c *Client) Notify(ctx context.Context, recipientID, channel, message string) error {
	body := map[string]any{
		"recipient_id": recipientID,
		"channel":      channel,
		"message":      message,
	}
	if err := c.postJSON(ctx, "/api/v1/notifications", body, nil); err != nil {
		return apperrors.NewActionError("notify", err)
	}
	return nil
}

// CreateEscalationRecord opens a tracking record for the breach.
func (c *Client) CreateEscalationRecord(ctx context.Context, payload EscalationRecordPayload) (string, error) {
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/api/v1/escalations", payload, &resp); err != nil {
		return "", apperrors.NewActionError("create_escalation_record", err)
	}
	return resp.Data.ID, nil
}

// ---- transport ----

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return c.do(req, out)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(op, policy)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("remote returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) endpoint(path string, query url.Values) string {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

// ---- conversions ----

func toPolicy(raw policyPayload) domain.ServiceLevelPolicy {
	rules := make([]domain.EscalationRule, 0, len(raw.EscalationRules))
	for _, r := range raw.EscalationRules {
		actions := make([]domain.ActionKind, 0, len(r.Actions))
		for _, a := range r.Actions {
			actions = append(actions, domain.ActionKind(a))
		}
		rules = append(rules, domain.EscalationRule{
			ID:                   r.ID,
			Name:                 r.Name,
			TriggerAfterMinutes:  r.TriggerAfterMinutes,
			EscalateToRole:       r.EscalateToRole,
			EscalateToUsers:      r.EscalateToUsers,
			NotificationTemplate: r.NotificationTemplate,
			Actions:              actions,
			MinSeverity:          domain.Severity(r.MinSeverity),
			Active:               r.Active,
		})
	}
	alerts := make([]domain.AlertRule, 0, len(raw.AlertRules))
	for _, a := range raw.AlertRules {
		alerts = append(alerts, domain.AlertRule{
			ID:                   a.ID,
			Name:                 a.Name,
			Condition:            a.Condition,
			Severity:             domain.Severity(a.Severity),
			NotificationChannels: a.NotificationChannels,
			Active:               a.Active,
			CooldownMinutes:      a.CooldownMinutes,
		})
	}
	return domain.ServiceLevelPolicy{
		ID:                    raw.ID,
		Name:                  raw.Name,
		Description:           raw.Description,
		Priority:              domain.ParsePriority(raw.Priority),
		ResponseTargetMinutes: raw.ResponseTargetMinutes,
		ResolutionTargetHours: raw.ResolutionTargetHours,
		BusinessHoursOnly:     raw.BusinessHoursOnly,
		EscalationRules:       rules,
		AlertRules:            alerts,
		Active:                raw.Active,
		CreatedAt:             parseOrZero(raw.CreatedAt),
		UpdatedAt:             parseOrZero(raw.UpdatedAt),
	}
}

func (c *Client) toTicket(raw ticketPayload) domain.TicketSnapshot {
	ticket := domain.TicketSnapshot{
		ID:           raw.ID,
		Number:       raw.Number,
		Subject:      raw.Subject,
		Status:       domain.TicketStatus(raw.Status),
		Priority:     domain.ParsePriority(raw.Priority),
		Category:     raw.Category,
		CustomerTier: raw.CustomerTier,
	}
	created, err := sla.ParseTime(raw.CreatedAt)
	if err != nil {
		// A snapshot without a parsable creation time cannot be evaluated;
		// the detector skips it and reports the item error.
		c.logger.Warn("unparsable ticket created_at",
			zap.String("ticket_id", raw.ID), zap.String("created_at", raw.CreatedAt))
	} else {
		ticket.CreatedAt = created
	}
	ticket.FirstResponseAt = parseOptional(raw.FirstResponseAt)
	ticket.ResolvedAt = parseOptional(raw.ResolvedAt)
	if raw.Assignee != nil {
		ticket.Assignee = &domain.TechnicianRef{
			ID:            raw.Assignee.ID,
			Name:          raw.Assignee.Name,
			OpenTickets:   raw.Assignee.OpenTickets,
			MaxConcurrent: raw.Assignee.MaxConcurrent,
		}
	}
	return ticket
}

func parseOptional(value string) *time.Time {
	if value == "" {
		return nil
	}
	parsed, err := sla.ParseTime(value)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseOrZero(value string) time.Time {
	parsed, err := sla.ParseTime(value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
