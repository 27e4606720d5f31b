package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"wallet-ticket-service/internal/config"
	"wallet-ticket-service/internal/email"
	"wallet-ticket-service/internal/push"
	"wallet-ticket-service/internal/store"
)

// Collaborator boundaries, satisfied by the concrete clients in
// internal/wallet/apple, internal/wallet/google and internal/email.

// PassRenderer produces a signed pass bundle for one attendee.
type PassRenderer interface {
	Render(email, name, code string, boothVisited int) ([]byte, error)
}

// WalletObjects maintains Google Wallet ticket objects.
type WalletObjects interface {
	ObjectID(email string) string
	UpsertObject(ctx context.Context, email, name, code string, boothVisited int) (string, error)
}

// TicketMailer delivers the ticket email with wallet links and QR code.
type TicketMailer interface {
	SendTicket(to string, data email.TicketData, qrPNG []byte) error
}

// Deps carries everything the route handlers need.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Renderer PassRenderer
	Google   WalletObjects
	Email    TicketMailer
	Push     *push.Service
}

func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(securityHeaders)
	router.Use(ErrorHandler())

	router.GET("/health", healthz)

	NewWebService(deps.Store, deps.Renderer, deps.Push, deps.Config).Register(router)
	NewTicketAPI(deps.Store, deps.Google, deps.Renderer, deps.Email, deps.Push, deps.Config).Register(router)

	return router
}
