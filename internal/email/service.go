package email

import (
	"fmt"
	"net/smtp"
	"time"
)

// Service handles email sending via SMTP
type Service struct {
	host     string
	port     string
	from     string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host:     host,
		port:     port,
		from:     from,
		sendMail: smtp.SendMail,
	}
}

// SendReceipt sends the premium upgrade receipt for a checkout session
func (s *Service) SendReceipt(to, sessionID string, paidAt time.Time) error {
	if to == "" {
		return fmt.Errorf("receipt for %s has no recipient", sessionID)
	}
	subject := fmt.Sprintf("Your ClipSwift Premium receipt (%s)", shortID(sessionID))
	body := BuildReceiptBody(sessionID, paidAt)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.sendMail(addr, nil, s.from, []string{to}, []byte(msg))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[len(id)-12:]
	}
	return id
}
