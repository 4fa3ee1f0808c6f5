package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newRecordingService(err error) (*Service, *[]sentMail) {
	var sent []sentMail
	s := NewService("smtp.local", "1025", "noreply@clipswift.app")
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return err
	}
	return s, &sent
}

func TestSendReceipt(t *testing.T) {
	s, sent := newRecordingService(nil)
	paid := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

	err := s.SendReceipt("ann@example.com", "cs_test_a1b2c3d4e5f6g7h8", paid)

	require.NoError(t, err)
	require.Len(t, *sent, 1)
	m := (*sent)[0]
	assert.Equal(t, "smtp.local:1025", m.addr)
	assert.Equal(t, "noreply@clipswift.app", m.from)
	assert.Equal(t, []string{"ann@example.com"}, m.to)
	assert.Contains(t, m.msg, "Subject: Your ClipSwift Premium receipt (c3d4e5f6g7h8)")
	assert.Contains(t, m.msg, "cs_test_a1b2c3d4e5f6g7h8")
	assert.Contains(t, m.msg, "April 2, 2026 10:30 UTC")
	assert.True(t, strings.Contains(m.msg, "Content-Type: text/html"))
}

func TestSendReceipt_NoRecipient(t *testing.T) {
	s, sent := newRecordingService(nil)

	err := s.SendReceipt("", "cs_1", time.Now())

	assert.Error(t, err)
	assert.Empty(t, *sent)
}

func TestSendReceipt_TransportError(t *testing.T) {
	s, _ := newRecordingService(errors.New("connection refused"))

	err := s.SendReceipt("ann@example.com", "cs_1", time.Now())

	assert.EqualError(t, err, "connection refused")
}

func TestBuildReceiptBody_EscapesReference(t *testing.T) {
	body := BuildReceiptBody("<script>", time.Now())

	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}
