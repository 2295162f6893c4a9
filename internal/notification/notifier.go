// Package notification delivers account emails. The auth service talks to Notifier; the
// Notifier renders plain-text messages and hands them to a Mailer (Kafka queue, SMTP, or log).
package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	accountdomain "storefront/backend/internal/account/domain"
)

// Kind identifies the template a message was rendered from.
type Kind string

const (
	KindVerification     Kind = "verification"
	KindPasswordReset    Kind = "password_reset"
	KindPasswordChanged  Kind = "password_changed"
	KindVerificationCode Kind = "verification_code"
)

// Message is one rendered email. It is also the JSON payload of the Kafka mail queue.
type Message struct {
	Kind      Kind   `json:"kind"`
	AccountID string `json:"accountId"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// Notifier is the email delivery contract used by the auth service.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, a *accountdomain.Account, token string) error
	SendPasswordResetEmail(ctx context.Context, a *accountdomain.Account, token string) error
	SendPasswordChangedNotice(ctx context.Context, a *accountdomain.Account) error
	SendVerificationCodeEmail(ctx context.Context, a *accountdomain.Account, code string) error
}

// EmailNotifier renders messages with links into the storefront frontend.
type EmailNotifier struct {
	mailer      Mailer
	frontendURL string
}

// NewEmailNotifier returns an EmailNotifier that sends through mailer.
func NewEmailNotifier(mailer Mailer, frontendURL string) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (n *EmailNotifier) SendVerificationEmail(ctx context.Context, a *accountdomain.Account, token string) error {
	link := n.link("/verify-email", token)
	return n.send(ctx, a, KindVerification, "Verify your email address", fmt.Sprintf(
		"Hi %s,\n\nPlease confirm your email address by opening the link below:\n\n%s\n\nThe link expires in 24 hours.\n",
		a.Name, link))
}

func (n *EmailNotifier) SendPasswordResetEmail(ctx context.Context, a *accountdomain.Account, token string) error {
	link := n.link("/reset-password", token)
	return n.send(ctx, a, KindPasswordReset, "Reset your password", fmt.Sprintf(
		"Hi %s,\n\nWe received a request to reset your password. Open the link below to choose a new one:\n\n%s\n\nThe link expires in 10 minutes. If you did not ask for this, ignore this email.\n",
		a.Name, link))
}

func (n *EmailNotifier) SendPasswordChangedNotice(ctx context.Context, a *accountdomain.Account) error {
	return n.send(ctx, a, KindPasswordChanged, "Your password was changed", fmt.Sprintf(
		"Hi %s,\n\nThe password for your account was just changed and other devices were signed out.\nIf this was not you, reset your password immediately.\n",
		a.Name))
}

func (n *EmailNotifier) SendVerificationCodeEmail(ctx context.Context, a *accountdomain.Account, code string) error {
	return n.send(ctx, a, KindVerificationCode, "Your verification code", fmt.Sprintf(
		"Hi %s,\n\nYour verification code is %s. It expires in 10 minutes.\n", a.Name, code))
}

func (n *EmailNotifier) link(path, token string) string {
	return n.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func (n *EmailNotifier) send(ctx context.Context, a *accountdomain.Account, kind Kind, subject, body string) error {
	if a == nil || a.Email == "" {
		return fmt.Errorf("notification: %s: no recipient", kind)
	}
	if err := n.mailer.Send(ctx, Message{Kind: kind, AccountID: a.ID, To: a.Email, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("notification: %s: %w", kind, err)
	}
	return nil
}
