package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"wallet-ticket-service/internal/config"
	"wallet-ticket-service/internal/email"
	"wallet-ticket-service/internal/push"
	"wallet-ticket-service/internal/store"
	"wallet-ticket-service/internal/utils"
)

// TicketAPI serves the issuance side: sending ticket emails with wallet
// links, handing out Apple passes to ticket holders, and recording booth
// visits (which fan out as pass updates).
type TicketAPI struct {
	store    store.Store
	google   WalletObjects
	renderer PassRenderer
	email    TicketMailer
	push     *push.Service
	cfg      *config.Config
	logger   *slog.Logger
}

func NewTicketAPI(st store.Store, gw WalletObjects, renderer PassRenderer, ec TicketMailer, pushSvc *push.Service, cfg *config.Config) *TicketAPI {
	return &TicketAPI{
		store:    st,
		google:   gw,
		renderer: renderer,
		email:    ec,
		push:     pushSvc,
		cfg:      cfg,
		logger:   slog.With("component", "tickets"),
	}
}

func (t *TicketAPI) Register(r gin.IRouter) {
	api := r.Group("/api")

	// Pass download is authenticated by the ticket holder's own email+code
	// pair embedded in the emailed link, not by the API key.
	api.GET("/appleWallet/pass", t.getApplePass)

	authed := api.Group("", RequireAPIKey(t.cfg.APIKey))
	{
		authed.POST("/tickets/email", t.emailTicket)
		authed.POST("/boothVisited", t.boothVisited)
	}
}

func (t *TicketAPI) callCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(t.cfg.UpstreamTimeout)*time.Second)
}

func (t *TicketAPI) writeCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), time.Duration(t.cfg.UpstreamTimeout)*time.Second)
}

type emailTicketBody struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required"`
	Code  string `json:"code" binding:"omitempty,alphanum,len=6"`
}

func (t *TicketAPI) emailTicket(c *gin.Context) {
	var body emailTicketBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %w", ErrInvalidParameter, err))
		return
	}

	ctx, cancel := t.writeCtx(c)
	defer cancel()

	// A holder who already has a ticket gets the same code again, so
	// re-sending the email never invalidates a pass already in a wallet.
	code := body.Code
	existing, err := t.store.FindTicketByEmail(ctx, body.Email)
	switch {
	case err == nil:
		code = existing.Code
	case errors.Is(err, store.ErrNotFound):
		if code == "" {
			code, err = utils.GenerateCode()
			if err != nil {
				AbortWithError(c, fmt.Errorf("generating code: %w", err))
				return
			}
		}
	default:
		AbortWithError(c, fmt.Errorf("%w: finding ticket: %w", ErrUpstream, err))
		return
	}

	serial := utils.Serial(body.Email)
	ticket := store.Ticket{
		Email:        body.Email,
		Name:         body.Name,
		Code:         code,
		ObjectID:     t.google.ObjectID(body.Email),
		Serial:       serial,
		BoothVisited: 0,
	}
	if existing != nil {
		ticket.BoothVisited = existing.BoothVisited
	}
	if err := t.store.PutTicket(ctx, ticket); err != nil {
		AbortWithError(c, fmt.Errorf("%w: storing ticket: %w", ErrUpstream, err))
		return
	}

	saveLink, err := t.google.UpsertObject(ctx, body.Email, body.Name, code, ticket.BoothVisited)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: google wallet: %w", ErrUpstream, err))
		return
	}

	qrPNG, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		AbortWithError(c, fmt.Errorf("encoding qr code: %w", err))
		return
	}

	query := url.Values{}
	query.Set("email", body.Email)
	query.Set("name", body.Name)
	query.Set("code", code)
	appleURL := utils.UrlFor(c, "/api/appleWallet/pass") + "?" + query.Encode()

	if err := t.email.SendTicket(body.Email, email.TicketData{
		Name:            body.Name,
		Code:            code,
		GoogleWalletURL: saveLink,
		AppleWalletURL:  appleURL,
	}, qrPNG); err != nil {
		AbortWithError(c, fmt.Errorf("%w: sending email: %w", ErrUpstream, err))
		return
	}

	t.logger.Info("Ticket emailed", "email", body.Email, "code", code)
	c.JSON(http.StatusOK, gin.H{"success": true, "code": code})
}

func (t *TicketAPI) getApplePass(c *gin.Context) {
	addr := c.Query("email")
	name := c.Query("name")
	code := c.Query("code")
	if addr == "" || name == "" || code == "" {
		AbortWithError(c, fmt.Errorf("%w: email, name and code are required", ErrMissingParameter))
		return
	}

	ctx, cancel := t.callCtx(c)
	defer cancel()

	ticket, err := t.store.GetTicketByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		AbortWithError(c, ErrTicketNotFound)
		return
	}
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: loading ticket: %w", ErrUpstream, err))
		return
	}
	// The emailed link carries both; a valid code alone is not enough.
	if ticket.Email != addr || ticket.Name != name {
		AbortWithError(c, ErrForbidden)
		return
	}

	bundle, err := t.renderer.Render(ticket.Email, ticket.Name, ticket.Code, ticket.BoothVisited)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: rendering pass: %w", ErrUpstream, err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pkpass", ticket.Serial))
	c.Header("Cache-Control", "no-cache, no-store")
	c.Data(http.StatusOK, "application/vnd.apple.pkpass", bundle)
}

type boothVisitedBody struct {
	Code         string `json:"code" binding:"required,alphanum,len=6"`
	BoothVisited *int   `json:"boothVisited" binding:"required,gte=0"`
}

func (t *TicketAPI) boothVisited(c *gin.Context) {
	var body boothVisitedBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %w", ErrInvalidParameter, err))
		return
	}

	ctx, cancel := t.writeCtx(c)
	defer cancel()

	ticket, err := t.store.GetTicketByCode(ctx, body.Code)
	if errors.Is(err, store.ErrNotFound) {
		AbortWithError(c, ErrTicketNotFound)
		return
	}
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: loading ticket: %w", ErrUpstream, err))
		return
	}

	visited := *body.BoothVisited
	if err := t.store.SetTicketBoothVisited(ctx, body.Code, visited); err != nil {
		AbortWithError(c, fmt.Errorf("%w: updating ticket: %w", ErrUpstream, err))
		return
	}

	if _, err := t.google.UpsertObject(ctx, ticket.Email, ticket.Name, ticket.Code, visited); err != nil {
		AbortWithError(c, fmt.Errorf("%w: google wallet: %w", ErrUpstream, err))
		return
	}

	// Bump the pass watermark, then nudge registered devices to re-fetch.
	passTypeID := t.cfg.AppleWallet.PassTypeIdentifier
	passID := store.PassID(passTypeID, ticket.Serial)
	if err := t.store.TouchPass(ctx, passID, time.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		AbortWithError(c, fmt.Errorf("%w: touching pass: %w", ErrUpstream, err))
		return
	}

	// The writes above are idempotent, so a failed fan-out surfaces as a
	// retriable 502 rather than a silent success.
	pushed, err := t.push.Fanout(ctx, passTypeID, []string{ticket.Serial})
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: push fan-out: %w", ErrUpstream, err))
		return
	}

	t.logger.Info("Booth visit recorded", "code", body.Code, "boothVisited", visited, "pushed", pushed)
	c.JSON(http.StatusOK, gin.H{"success": true, "boothVisited": visited})
}
