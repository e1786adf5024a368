package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/google/uuid"
)

type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	From               string
	InsecureSkipVerify bool
}

// SMTPMailer sends HTML mail over implicit TLS (port 465) or STARTTLS (any other port).
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (s *SMTPMailer) SendEmail(to []string, subject, body string) error {
	if len(to) == 0 {
		return errors.New("no recipients")
	}
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)

	msg := []byte("To: " + strings.Join(to, ", ") + "\r\n" +
		"From: " + s.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	tlsconfig := &tls.Config{
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
		ServerName:         s.cfg.Host,
	}

	var client *smtp.Client
	if s.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsconfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial: %w", err)
		}
		defer conn.Close()
		client, err = smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			return fmt.Errorf("smtp client: %w", err)
		}
	} else {
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		client = c
		if err = client.StartTLS(tlsconfig); err != nil {
			client.Close()
			return fmt.Errorf("smtp STARTTLS: %w", err)
		}
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("smtp close DATA: %w", err)
	}
	return nil
}

type Mailer interface {
	SendEmail(to []string, subject, body string) error
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

var emailTemplates = map[EventType]emailTemplate{
	EventBracketGenerated: {
		subject: "The bracket is ready",
		body:    template.Must(template.New("bracket_generated").Parse(`<p>The bracket has been generated. Check your first match: <a href="{{.Link}}">{{.Link}}</a></p>`)),
	},
	EventMatchReady: {
		subject: "Your next match is scheduled",
		body:    template.Must(template.New("match_ready").Parse(`<p>Your {{index .Data "round_name"}} match is ready to be played: <a href="{{.Link}}">{{.Link}}</a></p>`)),
	},
	EventResultSubmitted: {
		subject: "Your opponent submitted a result",
		body:    template.Must(template.New("result_submitted").Parse(`<p>Your opponent reported a score of {{index .Data "score"}}. Submit yours at <a href="{{.Link}}">{{.Link}}</a></p>`)),
	},
	EventVerificationRequired: {
		subject: "Match result awaiting verification",
		body:    template.Must(template.New("pending_verification").Parse(`<p>Both results are in. An organizer will confirm the winner shortly.</p>`)),
	},
	EventMatchCompleted: {
		subject: "Match completed",
		body:    template.Must(template.New("match_completed").Parse(`<p>The {{index .Data "round_name"}} match is over. See the bracket: <a href="{{.Link}}">{{.Link}}</a></p>`)),
	},
	EventDisputeReported: {
		subject: "A dispute was opened on your match",
		body:    template.Must(template.New("dispute_reported").Parse(`<p>Reason: {{index .Data "reason"}}</p><p>An organizer will review the dispute.</p>`)),
	},
	EventDisputeResolved: {
		subject: "Dispute resolved",
		body:    template.Must(template.New("dispute_resolved").Parse(`<p>Resolution: {{index .Data "resolution"}}</p>`)),
	},
	EventTournamentCompleted: {
		subject: "Tournament finished",
		body:    template.Must(template.New("tournament_completed").Parse(`<p>The tournament is over. Final standings: <a href="{{.Link}}">{{.Link}}</a></p>`)),
	},
}

// EmailDeliverer mails each recipient of an event. Recipients without a registration email are
// skipped; event types without a template are ignored.
type EmailDeliverer struct {
	mailer       Mailer
	participants repositories.ParticipantRepository
	publicURL    string
	logger       *slog.Logger
}

func NewEmailDeliverer(mailer Mailer, participants repositories.ParticipantRepository, publicURL string, logger *slog.Logger) *EmailDeliverer {
	return &EmailDeliverer{
		mailer:       mailer,
		participants: participants,
		publicURL:    strings.TrimRight(publicURL, "/"),
		logger:       logger,
	}
}

func (d *EmailDeliverer) Name() string { return "email" }

func (d *EmailDeliverer) DeliversPerRecipient() bool { return true }

func (d *EmailDeliverer) Deliver(ctx context.Context, event Event) error {
	tmpl, ok := emailTemplates[event.Type]
	if !ok || len(event.Recipients) == 0 {
		return nil
	}

	body, err := d.render(tmpl, event)
	if err != nil {
		return err
	}

	var errs []error
	for _, userID := range event.Recipients {
		address, err := d.lookupEmail(ctx, userID, event.TournamentID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if address == "" {
			continue
		}
		if err := d.mailer.SendEmail([]string{address}, tmpl.subject, body); err != nil {
			errs = append(errs, fmt.Errorf("send %s to user %s: %w", event.Type, userID, err))
		}
	}
	return errors.Join(errs...)
}

func (d *EmailDeliverer) lookupEmail(ctx context.Context, userID, tournamentID uuid.UUID) (string, error) {
	p, err := d.participants.FindByUserAndTournament(ctx, nil, userID, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			d.logger.DebugContext(ctx, "no registration for notification recipient", slog.String("user_id", userID.String()))
			return "", nil
		}
		return "", fmt.Errorf("lookup email of user %s: %w", userID, err)
	}
	return p.Email, nil
}

func (d *EmailDeliverer) render(tmpl emailTemplate, event Event) (string, error) {
	link := fmt.Sprintf("%s/tournaments/%s", d.publicURL, event.TournamentID)
	if event.MatchID != nil {
		link = fmt.Sprintf("%s/matches/%s", link, *event.MatchID)
	}
	data := struct {
		Link string
		Data map[string]string
	}{Link: link, Data: event.Data}

	var buf bytes.Buffer
	if err := tmpl.body.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", event.Type, err)
	}
	return buf.String(), nil
}
