package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"wallet-ticket-service/internal/config"
	"wallet-ticket-service/internal/push"
	"wallet-ticket-service/internal/store"
)

// WebService implements the Apple Wallet web service protocol: device
// registration, update polling and pass delivery under /v1, plus the
// operator-facing push endpoints.
type WebService struct {
	store    store.Store
	renderer PassRenderer
	push     *push.Service
	cfg      *config.Config
	logger   *slog.Logger
}

func NewWebService(st store.Store, renderer PassRenderer, pushSvc *push.Service, cfg *config.Config) *WebService {
	return &WebService{
		store:    st,
		renderer: renderer,
		push:     pushSvc,
		cfg:      cfg,
		logger:   slog.With("component", "webservice"),
	}
}

func (ws *WebService) Register(r gin.IRouter) {
	auth := RequireApplePass(ws.cfg.AppleWallet.AuthToken)

	v1 := r.Group("/v1")
	{
		// Polling is deliberately unauthenticated: devices call it with no
		// Authorization header, and it only ever leaks serial numbers.
		v1.GET("/devices/:deviceLibraryIdentifier/registrations/:passTypeIdentifier", ws.listUpdatedSerials)

		v1.POST("/devices/:deviceLibraryIdentifier/registrations/:passTypeIdentifier/:serialNumber", auth, ws.register)
		v1.DELETE("/devices/:deviceLibraryIdentifier/registrations/:passTypeIdentifier/:serialNumber", auth, ws.unregister)
		v1.GET("/passes/:passTypeIdentifier/:serialNumber", auth, ws.getPass)
		v1.POST("/log", ws.deviceLog)

		v1.POST("/push/:passTypeIdentifier", auth, ws.pushSerials)
		v1.POST("/push/:passTypeIdentifier/:serialNumber", auth, ws.pushSerial)
	}
}

func (ws *WebService) callCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(ws.cfg.UpstreamTimeout)*time.Second)
}

// writeCtx derives a context for state-changing store calls. Writes triggered
// by a request are allowed to complete even if the device hangs up mid-flight,
// so the request's own cancellation is stripped.
func (ws *WebService) writeCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), time.Duration(ws.cfg.UpstreamTimeout)*time.Second)
}

type registrationBody struct {
	PushToken string `json:"pushToken"`
}

func (ws *WebService) register(c *gin.Context) {
	deviceID := c.Param("deviceLibraryIdentifier")
	passTypeID := c.Param("passTypeIdentifier")
	serial := c.Param("serialNumber")

	var body registrationBody
	if err := c.ShouldBindJSON(&body); err != nil || body.PushToken == "" {
		AbortWithError(c, ErrMissingPushToken)
		return
	}

	ctx, cancel := ws.writeCtx(c)
	defer cancel()

	now := time.Now()
	passID := store.PassID(passTypeID, serial)

	if err := ws.store.UpsertPass(ctx, passID, store.Pass{
		PassTypeIdentifier: passTypeID,
		SerialNumber:       serial,
		UpdatedAt:          now,
	}); err != nil {
		AbortWithError(c, fmt.Errorf("%w: storing pass: %w", ErrUpstream, err))
		return
	}

	// Re-registration with a new token replaces the old one.
	if err := ws.store.UpsertDevice(ctx, deviceID, store.Device{
		PushToken: body.PushToken,
		SeenAt:    now,
	}); err != nil {
		AbortWithError(c, fmt.Errorf("%w: storing device: %w", ErrUpstream, err))
		return
	}

	regID := store.RegistrationID(deviceID, passID)
	exists, err := ws.store.RegistrationExists(ctx, regID)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: checking registration: %w", ErrUpstream, err))
		return
	}
	if exists {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	if err := ws.store.CreateRegistration(ctx, regID, store.Registration{
		DeviceLibraryIdentifier: deviceID,
		PassID:                  passID,
		PassTypeIdentifier:      passTypeID,
		SerialNumber:            serial,
		RegisteredAt:            now,
	}); err != nil {
		AbortWithError(c, fmt.Errorf("%w: creating registration: %w", ErrUpstream, err))
		return
	}

	ws.logger.Info("Device registered", "device", deviceID, "serial", serial)
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

func (ws *WebService) unregister(c *gin.Context) {
	deviceID := c.Param("deviceLibraryIdentifier")
	passTypeID := c.Param("passTypeIdentifier")
	serial := c.Param("serialNumber")

	ctx, cancel := ws.writeCtx(c)
	defer cancel()

	passID := store.PassID(passTypeID, serial)
	if err := ws.store.DeleteRegistration(ctx, store.RegistrationID(deviceID, passID)); err != nil {
		AbortWithError(c, fmt.Errorf("%w: deleting registration: %w", ErrUpstream, err))
		return
	}

	// Garbage-collect orphans on both sides of the registration.
	hasDevice, err := ws.store.HasRegistrationForDevice(ctx, deviceID)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: checking device registrations: %w", ErrUpstream, err))
		return
	}
	if !hasDevice {
		if err := ws.store.DeleteDevice(ctx, deviceID); err != nil {
			AbortWithError(c, fmt.Errorf("%w: deleting device: %w", ErrUpstream, err))
			return
		}
	}

	hasPass, err := ws.store.HasRegistrationForPass(ctx, passID)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: checking pass registrations: %w", ErrUpstream, err))
		return
	}
	if !hasPass {
		if err := ws.store.DeletePass(ctx, passID); err != nil {
			AbortWithError(c, fmt.Errorf("%w: deleting pass: %w", ErrUpstream, err))
			return
		}
	}

	ws.logger.Info("Device unregistered", "device", deviceID, "serial", serial)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (ws *WebService) listUpdatedSerials(c *gin.Context) {
	deviceID := c.Param("deviceLibraryIdentifier")
	passTypeID := c.Param("passTypeIdentifier")

	var sinceMs int64
	if since := c.Query("passesUpdatedSince"); since != "" {
		seconds, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			// An unparseable watermark matches nothing rather than everything.
			c.Status(http.StatusNoContent)
			return
		}
		sinceMs = seconds * 1000
	}

	ctx, cancel := ws.callCtx(c)
	defer cancel()

	regs, err := ws.store.ListRegistrationsByDevice(ctx, deviceID, passTypeID)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: listing registrations: %w", ErrUpstream, err))
		return
	}
	if len(regs) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	serials := []string{}
	maxUpdatedMs := sinceMs
	for _, reg := range regs {
		pass, err := ws.store.GetPass(ctx, reg.PassID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: loading pass: %w", ErrUpstream, err))
			return
		}
		updatedMs := pass.UpdatedAt.UnixMilli()
		if updatedMs > sinceMs {
			serials = append(serials, reg.SerialNumber)
			if updatedMs > maxUpdatedMs {
				maxUpdatedMs = updatedMs
			}
		}
	}

	if len(serials) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"serialNumbers": serials,
		"lastUpdated":   strconv.FormatInt(maxUpdatedMs/1000, 10),
	})
}

func (ws *WebService) getPass(c *gin.Context) {
	serial := c.Param("serialNumber")

	ctx, cancel := ws.callCtx(c)
	defer cancel()

	ticket, err := ws.store.GetTicketBySerial(ctx, serial)
	if errors.Is(err, store.ErrNotFound) {
		AbortWithError(c, ErrTicketNotFound)
		return
	}
	if errors.Is(err, store.ErrDuplicateTicket) {
		AbortWithError(c, fmt.Errorf("%w: serial %q", ErrStoreIntegrity, serial))
		return
	}
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: loading ticket: %w", ErrUpstream, err))
		return
	}

	bundle, err := ws.renderer.Render(ticket.Email, ticket.Name, ticket.Code, ticket.BoothVisited)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: rendering pass: %w", ErrUpstream, err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pkpass", serial))
	c.Header("Cache-Control", "no-cache, no-store")
	c.Data(http.StatusOK, "application/vnd.apple.pkpass", bundle)
}

// deviceLog accepts PassKit client error reports. Bodies are logged as-is and
// otherwise discarded.
func (ws *WebService) deviceLog(c *gin.Context) {
	var body struct {
		Logs []string `json:"logs"`
	}
	if err := c.ShouldBindJSON(&body); err == nil {
		for _, line := range body.Logs {
			ws.logger.Warn("Device log", "message", line)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type pushBody struct {
	SerialNumbers []string `json:"serialNumbers"`
}

func (ws *WebService) pushSerials(c *gin.Context) {
	var body pushBody
	if err := c.ShouldBindJSON(&body); err != nil || len(body.SerialNumbers) == 0 {
		AbortWithError(c, ErrMissingSerialNumbers)
		return
	}
	ws.fanout(c, c.Param("passTypeIdentifier"), body.SerialNumbers)
}

func (ws *WebService) pushSerial(c *gin.Context) {
	ws.fanout(c, c.Param("passTypeIdentifier"), []string{c.Param("serialNumber")})
}

func (ws *WebService) fanout(c *gin.Context, passTypeID string, serials []string) {
	ctx, cancel := ws.writeCtx(c)
	defer cancel()

	pushed, err := ws.push.Fanout(ctx, passTypeID, serials)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: push fan-out: %w", ErrUpstream, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pushed": pushed})
}
