// Package google maintains the Google Wallet event-ticket class and
// per-attendee objects, and signs "save to wallet" links.
package google

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/google"

	"wallet-ticket-service/internal/config"
	"wallet-ticket-service/internal/utils"
)

const (
	baseURL = "https://walletobjects.googleapis.com/walletobjects/v1"
	scope   = "https://www.googleapis.com/auth/wallet_object.issuer"
	saveURL = "https://pay.google.com/gp/v/save/"
)

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

type Client struct {
	http *http.Client

	issuerID string
	classID  string

	clientEmail string
	privateKey  *rsa.PrivateKey

	logger *slog.Logger
}

// NewClient reads the issuer's service account file and builds an
// authenticated Wallet API client.
func NewClient(ctx context.Context, cfg config.GoogleWalletConfig) (*Client, error) {
	data, err := os.ReadFile(cfg.ServiceAccountPath)
	if err != nil {
		return nil, fmt.Errorf("google wallet service account: %w", err)
	}

	var sa serviceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("google wallet service account: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, scope)
	if err != nil {
		return nil, fmt.Errorf("google wallet credentials: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("google wallet private key: %w", err)
	}

	return &Client{
		http:        jwtConfig.Client(ctx),
		issuerID:    cfg.IssuerID,
		classID:     fmt.Sprintf("%s.%s", cfg.IssuerID, cfg.ClassSuffix),
		clientEmail: sa.ClientEmail,
		privateKey:  privateKey,
		logger:      slog.With("component", "googlewallet"),
	}, nil
}

// ObjectID derives the wallet object id for an attendee email.
func (c *Client) ObjectID(email string) string {
	return fmt.Sprintf("%s.%s", c.issuerID, utils.Serial(email))
}

func (c *Client) request(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, err
	}
	return res.StatusCode, data, nil
}

// EnsureClass creates the event-ticket class unless it already exists.
// Called once at process start.
func (c *Client) EnsureClass(ctx context.Context) error {
	status, _, err := c.request(ctx, http.MethodGet, baseURL+"/eventTicketClass/"+c.classID, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		c.logger.Debug("Wallet class already exists", "class_id", c.classID)
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("wallet class lookup: status %d", status)
	}

	c.logger.Info("Creating wallet class", "class_id", c.classID)
	status, body, err := c.request(ctx, http.MethodPost, baseURL+"/eventTicketClass", c.classPayload())
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("wallet class create: status %d: %s", status, body)
	}
	return nil
}

func (c *Client) classPayload() map[string]any {
	return map[string]any{
		"id":           c.classID,
		"issuerName":   "Industrial Relations and Technology Transfer Center",
		"reviewStatus": "UNDER_REVIEW",
		"eventName": map[string]any{
			"defaultValue": map[string]any{"language": "en-US", "value": "Fostering Green Science and Innovation 2025"},
		},
		"eventId": "FGSI2025",
		"classTemplateInfo": map[string]any{
			"cardTemplateOverride": map[string]any{
				"cardRowTemplateInfos": []any{
					map[string]any{
						"twoItems": map[string]any{
							"startItem": map[string]any{
								"firstValue": map[string]any{
									"fields": []any{
										map[string]any{"fieldPath": "object.textModulesData['full_name']"},
									},
								},
							},
							"endItem": map[string]any{
								"firstValue": map[string]any{
									"fields": []any{
										map[string]any{"fieldPath": "object.textModulesData['booth_visited']"},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

func (c *Client) objectPayload(objectID, name, code string, boothVisited int) map[string]any {
	return map[string]any{
		"id":      objectID,
		"classId": c.classID,
		"state":   "ACTIVE",
		"ticketType": map[string]any{
			"defaultValue": map[string]any{"language": "en-US", "value": "General Admission"},
		},
		"cardTitle": map[string]any{
			"defaultValue": map[string]any{"language": "en-US", "value": "FGSI 2025"},
		},
		"textModulesData": []any{
			map[string]any{"id": "full_name", "header": "Attendee", "body": name},
			map[string]any{"id": "booth_visited", "header": "Booths visited", "body": fmt.Sprintf("%d", boothVisited)},
		},
		"barcode": map[string]any{
			"type":          "QR_CODE",
			"value":         code,
			"alternateText": "",
		},
		"hexBackgroundColor": "#003f20",
	}
}

// UpsertObject creates or fully replaces the attendee's wallet object and
// returns a signed save link for it.
func (c *Client) UpsertObject(ctx context.Context, email, name, code string, boothVisited int) (string, error) {
	objectID := c.ObjectID(email)
	object := c.objectPayload(objectID, name, code, boothVisited)

	status, _, err := c.request(ctx, http.MethodGet, baseURL+"/eventTicketObject/"+objectID, nil)
	if err != nil {
		return "", err
	}

	switch status {
	case http.StatusOK:
		c.logger.Debug("Wallet object exists, updating", "object_id", objectID)
		status, body, err := c.request(ctx, http.MethodPut, baseURL+"/eventTicketObject/"+objectID, object)
		if err != nil {
			return "", err
		}
		if status != http.StatusOK {
			return "", fmt.Errorf("wallet object update: status %d: %s", status, body)
		}
	case http.StatusNotFound:
		c.logger.Info("Creating wallet object", "object_id", objectID)
		status, body, err := c.request(ctx, http.MethodPost, baseURL+"/eventTicketObject", object)
		if err != nil {
			return "", err
		}
		if status != http.StatusOK {
			return "", fmt.Errorf("wallet object create: status %d: %s", status, body)
		}
	default:
		return "", fmt.Errorf("wallet object lookup: status %d", status)
	}

	return c.SaveLink(object)
}

// SaveLink signs a savetowallet JWT embedding the object and returns the
// pay.google.com link that adds it to the user's wallet.
func (c *Client) SaveLink(object map[string]any) (string, error) {
	claims := jwt.MapClaims{
		"iss":     c.clientEmail,
		"aud":     "google",
		"typ":     "savetowallet",
		"origins": []string{},
		"payload": map[string]any{
			"eventTicketObjects": []any{object},
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign save link: %w", err)
	}
	return saveURL + token, nil
}
