package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"wallet-ticket-service/internal/apns"
	"wallet-ticket-service/internal/config"
	"wallet-ticket-service/internal/email"
	"wallet-ticket-service/internal/push"
	"wallet-ticket-service/internal/store"
)

const (
	testAuthToken  = "secret-token"
	testPassTypeID = "pass.com.example.event"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGateway struct {
	mu       sync.Mutex
	batches  [][]string
	failures map[string]apns.Failure
	sendErr  error
}

func (g *fakeGateway) Send(ctx context.Context, n apns.Notification, tokens []string) (*apns.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.batches = append(g.batches, tokens)

	res := &apns.Result{}
	for _, tok := range tokens {
		if f, ok := g.failures[tok]; ok {
			res.Failed = append(res.Failed, f)
		} else {
			res.Sent = append(res.Sent, tok)
		}
	}
	return res, nil
}

type walletUpsert struct {
	Email        string
	Name         string
	Code         string
	BoothVisited int
}

type fakeWalletObjects struct {
	mu      sync.Mutex
	upserts []walletUpsert
	err     error
}

func (f *fakeWalletObjects) ObjectID(email string) string {
	return "3388000000012345678." + email
}

func (f *fakeWalletObjects) UpsertObject(ctx context.Context, email, name, code string, boothVisited int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.upserts = append(f.upserts, walletUpsert{Email: email, Name: name, Code: code, BoothVisited: boothVisited})
	return "https://pay.google.com/gp/v/save/test-token", nil
}

type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) Render(email, name, code string, boothVisited int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("pkpass-bytes"), nil
}

type sentMail struct {
	To   string
	Data email.TicketData
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendTicket(to string, data email.TicketData, qrPNG []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Data: data})
	return nil
}

type testEnv struct {
	router *gin.Engine
	store  store.Store
	google *fakeWalletObjects
	mailer *fakeMailer
}

func newTestEnv(gw apns.Gateway) *testEnv {
	st := store.NewMemoryStore()
	cfg := &config.Config{
		APIKey:          "test-api-key",
		UpstreamTimeout: 5,
		AppleWallet: config.AppleWalletConfig{
			AuthToken:          testAuthToken,
			PassTypeIdentifier: testPassTypeID,
		},
	}
	pushSvc := push.NewService(st, gw, testPassTypeID, 5*time.Second)
	google := &fakeWalletObjects{}
	mailer := &fakeMailer{}
	router := NewRouter(Deps{
		Config:   cfg,
		Store:    st,
		Renderer: &fakeRenderer{},
		Google:   google,
		Email:    mailer,
		Push:     pushSvc,
	})
	return &testEnv{router: router, store: st, google: google, mailer: mailer}
}

func newTestRouter(gw apns.Gateway) (*gin.Engine, store.Store) {
	env := newTestEnv(gw)
	return env.router, env.store
}

func doRequest(router *gin.Engine, method, path, body string, authed bool) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "ApplePass "+testAuthToken)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerDevice(t *testing.T, router *gin.Engine, deviceID, serial, pushToken string) {
	t.Helper()
	w := doRequest(router, http.MethodPost,
		"/v1/devices/"+deviceID+"/registrations/"+testPassTypeID+"/"+serial,
		`{"pushToken":"`+pushToken+`"}`, true)
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("registration failed: status %d body %s", w.Code, w.Body.String())
	}
}

func TestRegister_CreatedThenExists(t *testing.T) {
	router, st := newTestRouter(&fakeGateway{})

	w := doRequest(router, http.MethodPost,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"/serialA",
		`{"pushToken":"tok-1"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("first registration: got %d, want 201", w.Code)
	}

	w = doRequest(router, http.MethodPost,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"/serialA",
		`{"pushToken":"tok-2"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("repeat registration: got %d, want 200", w.Code)
	}

	// Re-registering replaces the push token.
	dev, err := st.GetDevice(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("device not stored: %v", err)
	}
	if dev.PushToken != "tok-2" {
		t.Fatalf("push token not replaced: got %q", dev.PushToken)
	}
}

func TestRegister_MissingPushToken(t *testing.T) {
	router, st := newTestRouter(&fakeGateway{})

	w := doRequest(router, http.MethodPost,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"/serialA", `{}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}

	if _, err := st.GetDevice(context.Background(), "dev1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("device should not have been stored, got err=%v", err)
	}
}

func TestRegister_Unauthorized(t *testing.T) {
	router, st := newTestRouter(&fakeGateway{})

	req := httptest.NewRequest(http.MethodPost,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"/serialA",
		strings.NewReader(`{"pushToken":"tok-1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "ApplePass wrong-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "ApplePass" {
		t.Fatalf("WWW-Authenticate: got %q, want %q", got, "ApplePass")
	}
	if _, err := st.GetDevice(context.Background(), "dev1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejected request must not write, got err=%v", err)
	}
}

func TestUnregister_GarbageCollection(t *testing.T) {
	router, st := newTestRouter(&fakeGateway{})
	ctx := context.Background()

	registerDevice(t, router, "dev1", "serialA", "tok-1")
	registerDevice(t, router, "dev1", "serialB", "tok-1")

	w := doRequest(router, http.MethodDelete,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"/serialA", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("unregister serialA: got %d, want 200", w.Code)
	}

	// Device still holds serialB, so it survives; pass A is orphaned and goes.
	if _, err := st.GetDevice(ctx, "dev1"); err != nil {
		t.Fatalf("device should survive while registrations remain: %v", err)
	}
	if _, err := st.GetPass(ctx, store.PassID(testPassTypeID, "serialA")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("orphaned pass should be deleted, got err=%v", err)
	}
	if _, err := st.GetPass(ctx, store.PassID(testPassTypeID, "serialB")); err != nil {
		t.Fatalf("pass B should survive: %v", err)
	}

	w = doRequest(router, http.MethodDelete,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"/serialB", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("unregister serialB: got %d, want 200", w.Code)
	}
	if _, err := st.GetDevice(ctx, "dev1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("device with no registrations should be deleted, got err=%v", err)
	}

	// Deleting an already-gone registration is still a 200.
	w = doRequest(router, http.MethodDelete,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"/serialB", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("repeated unregister: got %d, want 200", w.Code)
	}
}

func seedRegistration(t *testing.T, st store.Store, deviceID, serial string, updatedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	passID := store.PassID(testPassTypeID, serial)
	if err := st.UpsertPass(ctx, passID, store.Pass{
		PassTypeIdentifier: testPassTypeID,
		SerialNumber:       serial,
		UpdatedAt:          updatedAt,
	}); err != nil {
		t.Fatalf("seeding pass: %v", err)
	}
	if err := st.UpsertDevice(ctx, deviceID, store.Device{PushToken: "tok-" + deviceID, SeenAt: updatedAt}); err != nil {
		t.Fatalf("seeding device: %v", err)
	}
	if err := st.CreateRegistration(ctx, store.RegistrationID(deviceID, passID), store.Registration{
		DeviceLibraryIdentifier: deviceID,
		PassID:                  passID,
		PassTypeIdentifier:      testPassTypeID,
		SerialNumber:            serial,
		RegisteredAt:            updatedAt,
	}); err != nil {
		t.Fatalf("seeding registration: %v", err)
	}
}

type serialsResponse struct {
	SerialNumbers []string `json:"serialNumbers"`
	LastUpdated   string   `json:"lastUpdated"`
}

func TestListUpdatedSerials(t *testing.T) {
	router, st := newTestRouter(&fakeGateway{})

	seedRegistration(t, st, "dev1", "serialA", time.UnixMilli(1000))
	seedRegistration(t, st, "dev1", "serialB", time.UnixMilli(5000))

	// Polling is unauthenticated.
	w := doRequest(router, http.MethodGet,
		"/v1/devices/dev1/registrations/"+testPassTypeID, "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	var resp serialsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.SerialNumbers) != 2 {
		t.Fatalf("got serials %v, want both", resp.SerialNumbers)
	}
	if resp.LastUpdated != "5" {
		t.Fatalf("lastUpdated: got %q, want %q", resp.LastUpdated, "5")
	}

	// Watermark filters out passes at or before the cutoff.
	w = doRequest(router, http.MethodGet,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"?passesUpdatedSince=2", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	resp = serialsResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.SerialNumbers) != 1 || resp.SerialNumbers[0] != "serialB" {
		t.Fatalf("got serials %v, want [serialB]", resp.SerialNumbers)
	}
	if resp.LastUpdated != "5" {
		t.Fatalf("lastUpdated: got %q, want %q", resp.LastUpdated, "5")
	}

	// Nothing newer than the watermark.
	w = doRequest(router, http.MethodGet,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"?passesUpdatedSince=5", "", false)
	if w.Code != http.StatusNoContent {
		t.Fatalf("got %d, want 204", w.Code)
	}

	// Unknown device.
	w = doRequest(router, http.MethodGet,
		"/v1/devices/nobody/registrations/"+testPassTypeID, "", false)
	if w.Code != http.StatusNoContent {
		t.Fatalf("got %d, want 204", w.Code)
	}
}

func TestListUpdatedSerials_MalformedSince(t *testing.T) {
	router, st := newTestRouter(&fakeGateway{})

	seedRegistration(t, st, "dev1", "serialA", time.UnixMilli(1000))

	// A watermark that does not parse matches nothing, not everything.
	w := doRequest(router, http.MethodGet,
		"/v1/devices/dev1/registrations/"+testPassTypeID+"?passesUpdatedSince=garbage", "", false)
	if w.Code != http.StatusNoContent {
		t.Fatalf("got %d, want 204", w.Code)
	}
}

func TestPushSerials_FansOutToRegisteredDevices(t *testing.T) {
	gw := &fakeGateway{}
	router, _ := newTestRouter(gw)

	registerDevice(t, router, "dev1", "serialA", "tok-1")
	registerDevice(t, router, "dev2", "serialA", "tok-2")
	registerDevice(t, router, "dev3", "serialB", "tok-3")

	w := doRequest(router, http.MethodPost, "/v1/push/"+testPassTypeID,
		`{"serialNumbers":["serialA"]}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Pushed  int  `json:"pushed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Success || resp.Pushed != 2 {
		t.Fatalf("got pushed=%d success=%v, want pushed=2", resp.Pushed, resp.Success)
	}

	if len(gw.batches) != 1 {
		t.Fatalf("got %d gateway batches, want 1", len(gw.batches))
	}
	for _, tok := range gw.batches[0] {
		if tok == "tok-3" {
			t.Fatal("device registered for a different serial must not be pushed")
		}
	}
}

func TestPushSerials_EmptyList(t *testing.T) {
	router, _ := newTestRouter(&fakeGateway{})

	w := doRequest(router, http.MethodPost, "/v1/push/"+testPassTypeID,
		`{"serialNumbers":[]}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

func TestPushSerial_TerminalFailurePurgesDevice(t *testing.T) {
	gw := &fakeGateway{failures: map[string]apns.Failure{
		"tok-dead": {Device: "tok-dead", Status: http.StatusGone, Reason: "Unregistered"},
	}}
	router, st := newTestRouter(gw)
	ctx := context.Background()

	registerDevice(t, router, "dev-dead", "serialA", "tok-dead")
	registerDevice(t, router, "dev-live", "serialA", "tok-live")

	w := doRequest(router, http.MethodPost,
		"/v1/push/"+testPassTypeID+"/serialA", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Pushed int `json:"pushed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Pushed != 1 {
		t.Fatalf("got pushed=%d, want 1", resp.Pushed)
	}

	// Terminal rejection purges the device and its registrations.
	if _, err := st.GetDevice(ctx, "dev-dead"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("dead device should be purged, got err=%v", err)
	}
	has, err := st.HasRegistrationForDevice(ctx, "dev-dead")
	if err != nil {
		t.Fatalf("checking registrations: %v", err)
	}
	if has {
		t.Fatal("dead device registrations should be cascade-deleted")
	}
	if _, err := st.GetDevice(ctx, "dev-live"); err != nil {
		t.Fatalf("healthy device must survive the sweep: %v", err)
	}
}

func TestPushSerials_ChunksLookups(t *testing.T) {
	gw := &fakeGateway{}
	router, _ := newTestRouter(gw)

	serials := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		serial := "serial" + string(rune('A'+i))
		registerDevice(t, router, "dev1", serial, "tok-1")
		serials = append(serials, serial)
	}

	body, _ := json.Marshal(map[string][]string{"serialNumbers": serials})
	w := doRequest(router, http.MethodPost, "/v1/push/"+testPassTypeID, string(body), true)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", w.Code, w.Body.String())
	}

	// One device across 25 serials: lookups are chunked but the device is
	// pushed exactly once.
	var resp struct {
		Pushed int `json:"pushed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Pushed != 1 {
		t.Fatalf("got pushed=%d, want 1", resp.Pushed)
	}
	if len(gw.batches) != 1 || len(gw.batches[0]) != 1 {
		t.Fatalf("got batches %v, want a single one-token batch", gw.batches)
	}
}

func TestGetPass_ServesBundle(t *testing.T) {
	router, st := newTestRouter(&fakeGateway{})

	err := st.PutTicket(context.Background(), store.Ticket{
		Email:  "jane@example.com",
		Name:   "Jane Doe",
		Code:   "ABC123",
		Serial: "jane_example.com",
	})
	if err != nil {
		t.Fatalf("seeding ticket: %v", err)
	}

	w := doRequest(router, http.MethodGet,
		"/v1/passes/"+testPassTypeID+"/jane_example.com", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.apple.pkpass" {
		t.Fatalf("Content-Type: got %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=jane_example.com.pkpass" {
		t.Fatalf("Content-Disposition: got %q", cd)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache, no-store" {
		t.Fatalf("Cache-Control: got %q", cc)
	}
	if w.Body.String() != "pkpass-bytes" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}

func TestGetPass_NotFound(t *testing.T) {
	router, _ := newTestRouter(&fakeGateway{})

	w := doRequest(router, http.MethodGet,
		"/v1/passes/"+testPassTypeID+"/unknown", "", true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", w.Code)
	}
}

func TestGetPass_DuplicateSerial(t *testing.T) {
	router, st := newTestRouter(&fakeGateway{})
	ctx := context.Background()

	if err := st.PutTicket(ctx, store.Ticket{Email: "a@example.com", Name: "A", Code: "AAAAAA", Serial: "shared"}); err != nil {
		t.Fatalf("seeding ticket: %v", err)
	}
	if err := st.PutTicket(ctx, store.Ticket{Email: "b@example.com", Name: "B", Code: "BBBBBB", Serial: "shared"}); err != nil {
		t.Fatalf("seeding ticket: %v", err)
	}

	w := doRequest(router, http.MethodGet,
		"/v1/passes/"+testPassTypeID+"/shared", "", true)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", w.Code)
	}
}
