package google

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return &Client{
		issuerID:    "3388000000012345678",
		classID:     "3388000000012345678.event.generalAdmission",
		clientEmail: "issuer@project.iam.gserviceaccount.com",
		privateKey:  key,
	}
}

func TestObjectID(t *testing.T) {
	c := testClient(t)
	got := c.ObjectID("jane.doe+vip@example.com")
	want := "3388000000012345678.jane.doe_vip_example.com"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSaveLink(t *testing.T) {
	c := testClient(t)
	object := c.objectPayload(c.ObjectID("jane@example.com"), "Jane Doe", "ABC123", 0)

	link, err := c.SaveLink(object)
	if err != nil {
		t.Fatalf("save link: %v", err)
	}
	if !strings.HasPrefix(link, saveURL) {
		t.Fatalf("link %q missing prefix %q", link, saveURL)
	}

	// The link embeds a verifiable RS256 JWT carrying the object.
	parsed, err := jwt.Parse(strings.TrimPrefix(link, saveURL), func(tok *jwt.Token) (any, error) {
		return &c.privateKey.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithAudience("google"))
	if err != nil {
		t.Fatalf("parsing token: %v", err)
	}

	claims := parsed.Claims.(jwt.MapClaims)
	if claims["typ"] != "savetowallet" {
		t.Fatalf("typ: got %v", claims["typ"])
	}
	if claims["iss"] != c.clientEmail {
		t.Fatalf("iss: got %v", claims["iss"])
	}
	payload := claims["payload"].(map[string]any)
	objects := payload["eventTicketObjects"].([]any)
	if len(objects) != 1 {
		t.Fatalf("got %d objects, want 1", len(objects))
	}
	embedded := objects[0].(map[string]any)
	if embedded["id"] != c.ObjectID("jane@example.com") {
		t.Fatalf("object id: got %v", embedded["id"])
	}
}

func TestObjectPayload(t *testing.T) {
	c := testClient(t)
	object := c.objectPayload("3388000000012345678.jane_example.com", "Jane Doe", "ABC123", 4)

	if object["classId"] != c.classID {
		t.Fatalf("classId: got %v", object["classId"])
	}
	barcode := object["barcode"].(map[string]any)
	if barcode["value"] != "ABC123" {
		t.Fatalf("barcode: got %v", barcode["value"])
	}
	modules := object["textModulesData"].([]any)
	booth := modules[1].(map[string]any)
	if booth["body"] != "4" {
		t.Fatalf("booth module: got %v", booth["body"])
	}
}
