package utils

import (
	"fmt"

	"leadmap/models"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// MailService sends one campaign email and returns the provider message ID.
type MailService interface {
	Send(sender *models.Sender, email *models.Email) (string, error)
}

// SMTPMailer delivers campaign emails through the sender's own SMTP
// account. The stored password is decrypted just before dialing.
type SMTPMailer struct{}

func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{}
}

func (m *SMTPMailer) Send(sender *models.Sender, email *models.Email) (string, error) {
	password, err := Decrypt(sender.SMTPPassword)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	messageID := email.MessageID
	if messageID == "" {
		domain := ExtractDomain(sender.FromEmail)
		if domain == "" {
			domain = sender.SMTPHost
		}
		messageID = fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", sender.FromEmail, sender.FromName)
	msg.SetHeader("To", email.ToEmail)
	msg.SetHeader("Subject", email.Subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/html", email.BodyHTML)

	dialer := gomail.NewDialer(sender.SMTPHost, sender.SMTPPort, sender.SMTPUsername, password)
	if err := dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("failed to send to %s: %w", email.ToEmail, err)
	}

	return messageID, nil
}
