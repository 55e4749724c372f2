package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// brevoContact is an address as the Brevo v3 API expects it.
type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// brevoMessage is the transactional email body.
type brevoMessage struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	ReplyTo     *brevoContact  `json:"replyTo,omitempty"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// SendError is a non-2xx answer from Brevo.
type SendError struct {
	Status int
}

func (e *SendError) Error() string {
	return fmt.Sprintf("brevo send failed: status %d", e.Status)
}

// Temporary reports whether retrying later can succeed.
func (e *SendError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// RequestNotice carries the fields shown in request emails.
type RequestNotice struct {
	ToEmail       string
	ToName        string
	ListingTitle  string
	RequesterName string
	Phone         string
	Location      string
	Message       string
	Link          string
}

// Sender sends transactional emails. Nil = no-op.
type Sender interface {
	SendWelcome(ctx context.Context, toEmail, firstName string) error
	SendRequestReceived(ctx context.Context, n RequestNotice) error
	SendRequestDecision(ctx context.Context, n RequestNotice, approved bool) error
}

// BrevoClient sends emails via Brevo (Sendinblue) API.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	// Endpoint overrides the Brevo API URL.
	Endpoint string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@agrihub.app"
}

func (c *BrevoClient) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return brevoAPI
}

func (c *BrevoClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

const (
	sendAttempts = 3
	retryBackoff = 500 * time.Millisecond
)

// send delivers one email, retrying rate limits and Brevo outages a couple of
// times. Without an API key it does nothing.
func (c *BrevoClient) send(ctx context.Context, toEmail, toName, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	payload, err := json.Marshal(brevoMessage{
		Sender:      brevoContact{Email: c.from(), Name: "AgriHub"},
		To:          []brevoContact{{Email: toEmail, Name: toName}},
		ReplyTo:     &brevoContact{Email: "support@agrihub.app", Name: "AgriHub Support"},
		Subject:     subject,
		HTMLContent: html,
	})
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err = c.post(ctx, payload)
		var se *SendError
		if err == nil || !errors.As(err, &se) || !se.Temporary() || attempt == sendAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
}

func (c *BrevoClient) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return &SendError{Status: resp.StatusCode}
	}
	return nil
}

// SendWelcome sends the welcome email after registration.
func (c *BrevoClient) SendWelcome(ctx context.Context, toEmail, firstName string) error {
	if firstName == "" {
		firstName = "there"
	}
	return c.send(ctx, toEmail, firstName, "Welcome to AgriHub!", EmailLayout(welcomeContent(firstName)))
}

// SendRequestReceived tells a listing owner about a new request.
func (c *BrevoClient) SendRequestReceived(ctx context.Context, n RequestNotice) error {
	subject := fmt.Sprintf("New request for %s", n.ListingTitle)
	return c.send(ctx, n.ToEmail, n.ToName, subject, EmailLayout(requestReceivedContent(n)))
}

// SendRequestDecision tells a requester whether the owner approved or rejected.
func (c *BrevoClient) SendRequestDecision(ctx context.Context, n RequestNotice, approved bool) error {
	subject := fmt.Sprintf("Your request for %s was declined", n.ListingTitle)
	if approved {
		subject = fmt.Sprintf("Your request for %s was approved", n.ListingTitle)
	}
	return c.send(ctx, n.ToEmail, n.ToName, subject, EmailLayout(requestDecisionContent(n, approved)))
}

func welcomeContent(userName string) string {
	return fmt.Sprintf(`
    <h1>Welcome to AgriHub, %s!</h1>
    <p>Your account is ready. You can now list equipment, land and seeds, or request what you need from farmers near you.</p>
    <p>The AgriHub Team</p>
`, EscapeHTML(userName))
}

func requestReceivedContent(n RequestNotice) string {
	message := ""
	if n.Message != "" {
		message = fmt.Sprintf(`<tr><td><strong>Message</strong></td><td>%s</td></tr>`, EscapeHTML(n.Message))
	}
	return fmt.Sprintf(`
    <h1>New request for %s</h1>
    <p>Hi %s, someone wants your listing.</p>
    <table>
      <tr><td><strong>Name</strong></td><td>%s</td></tr>
      <tr><td><strong>Phone</strong></td><td>%s</td></tr>
      <tr><td><strong>Location</strong></td><td>%s</td></tr>
      %s
    </table>
    <center><a href="%s" class="agri-button">Review request</a></center>
`, EscapeHTML(n.ListingTitle), EscapeHTML(n.ToName), EscapeHTML(n.RequesterName), EscapeHTML(n.Phone),
		EscapeHTML(n.Location), message, n.Link)
}

func requestDecisionContent(n RequestNotice, approved bool) string {
	verdict := "declined"
	next := "The listing may no longer be available. Browse other listings near you."
	if approved {
		verdict = "approved"
		next = "The owner will contact you on the phone number you provided."
	}
	return fmt.Sprintf(`
    <h1>Request %s</h1>
    <p>Hi %s, your request for <strong>%s</strong> was %s.</p>
    <p>%s</p>
    <center><a href="%s" class="agri-button">View your requests</a></center>
`, verdict, EscapeHTML(n.ToName), EscapeHTML(n.ListingTitle), verdict, next, n.Link)
}
