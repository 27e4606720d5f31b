package email

import (
	"bytes"
	"strings"
	"testing"

	"wallet-ticket-service/internal/config"
)

func testTicketData() TicketData {
	return TicketData{
		Name:            "Jane Doe",
		Code:            "ABC123",
		GoogleWalletURL: "https://pay.google.com/gp/v/save/token",
		AppleWalletURL:  "https://wallet.example.com/api/appleWallet/pass?code=ABC123",
	}
}

func TestBuildMessage(t *testing.T) {
	c, err := NewClient(config.EmailConfig{
		From:    "noreply@example.com",
		Subject: "Your event ticket",
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	qrPNG := []byte{0x89, 0x50, 0x4e, 0x47}
	msg, err := c.buildMessage("jane@example.com", testTicketData(), qrPNG)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("serializing message: %v", err)
	}
	raw := buf.String()

	if !strings.Contains(raw, "jane@example.com") {
		t.Fatal("recipient missing from message")
	}
	if !strings.Contains(raw, "Subject: Your event ticket") {
		t.Fatal("subject missing from message")
	}
	// Inline QR must carry an image content type, not a generic octet stream.
	if !strings.Contains(raw, "image/png") {
		t.Fatal("embedded qr code missing image/png content type")
	}
	if !strings.Contains(raw, "qrcode.png") {
		t.Fatal("embedded qr code filename missing")
	}
	if !strings.Contains(raw, "ABC123") {
		t.Fatal("ticket code missing from body")
	}
}
