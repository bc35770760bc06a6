package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	queueService *QueueService
	broadcaster  *Broadcaster
	pubNub       Pubnub
	cfg          *Config
}

func NewHandlers(queueService *QueueService, broadcaster *Broadcaster, pubNub Pubnub, cfg *Config) *Handlers {
	return &Handlers{
		queueService: queueService,
		broadcaster:  broadcaster,
		pubNub:       pubNub,
		cfg:          cfg,
	}
}

type CreateReservationRequest struct {
	Name     string `json:"name" validate:"required,max=50"`
	Duration int    `json:"duration" validate:"required,oneof=1 3 5"`
	Token    string `json:"token"`
}

// errorResponse writes classified errors with their own status and logs the
// rest as internal failures.
func errorResponse(c echo.Context, op string, err error) error {
	var qe *QueueError
	if errors.As(err, &qe) {
		return c.JSON(qe.Status, map[string]string{"error": qe.Error(), "code": qe.Code})
	}
	slog.Error(op, "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *Handlers) CreateReservation(c echo.Context) error {
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, "CreateReservation", ErrRequestInvalid.WithMessage("body must be a JSON reservation"))
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := c.Validate(&req); err != nil {
		return errorResponse(c, "CreateReservation", validationError(err))
	}

	now := h.queueService.Now()
	schedule := h.queueService.Schedule()

	token := c.QueryParam("token")
	if token == "" {
		token = req.Token
	}
	if h.cfg.RequireToken && !schedule.ValidToken(token, now) {
		return errorResponse(c, "CreateReservation", ErrTokenInvalid.WithMessage("use today's QR code"))
	}
	if h.cfg.EnforceAcceptance && !schedule.Accepting(now) {
		return errorResponse(c, "CreateReservation", ErrOutsideHours.WithMessagef("registration is open %s-%s", schedule.AcceptFrom, schedule.AcceptUntil))
	}

	r, err := h.queueService.Add(c.Request().Context(), req.Name, req.Duration)
	if err != nil {
		return errorResponse(c, "h.queueService.Add()", err)
	}

	return c.JSON(http.StatusCreated, r)
}

func (h *Handlers) GetReservation(c echo.Context) error {
	id := c.Param("id")

	r, err := h.queueService.Get(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, fmt.Sprintf("h.queueService.Get(%v)", id), err)
	}

	return c.JSON(http.StatusOK, r)
}

func (h *Handlers) GetCurrent(c echo.Context) error {
	status, err := h.queueService.CurrentStatus(c.Request().Context())
	if err != nil {
		return errorResponse(c, "h.queueService.CurrentStatus()", err)
	}

	return c.JSON(http.StatusOK, status)
}

func (h *Handlers) GetWaiting(c echo.Context) error {
	waiting, err := h.queueService.Waiting(c.Request().Context())
	if err != nil {
		return errorResponse(c, "h.queueService.Waiting()", err)
	}

	return c.JSON(http.StatusOK, waiting)
}

func (h *Handlers) GetWaitingCount(c echo.Context) error {
	count, err := h.queueService.WaitingCount(c.Request().Context())
	if err != nil {
		return errorResponse(c, "h.queueService.WaitingCount()", err)
	}

	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

func (h *Handlers) GetBoard(c echo.Context) error {
	board, err := h.queueService.Board(c.Request().Context())
	if err != nil {
		return errorResponse(c, "h.queueService.Board()", err)
	}

	return c.JSON(http.StatusOK, board)
}

func (h *Handlers) GetEstimate(c echo.Context) error {
	position, err := strconv.Atoi(c.QueryParam("position"))
	if err != nil {
		return errorResponse(c, "GetEstimate", ErrInvalidPosition.WithMessage("position must be an integer"))
	}

	estimate, err := h.queueService.Estimate(c.Request().Context(), position)
	if err != nil {
		return errorResponse(c, fmt.Sprintf("h.queueService.Estimate(%v)", position), err)
	}

	return c.JSON(http.StatusOK, estimate)
}

func (h *Handlers) GetPosition(c echo.Context) error {
	id := c.Param("id")

	info, err := h.queueService.Position(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, fmt.Sprintf("h.queueService.Position(%v)", id), err)
	}

	return c.JSON(http.StatusOK, info)
}

func (h *Handlers) StartNext(c echo.Context) error {
	r, err := h.queueService.PromoteNext(c.Request().Context())
	if err != nil {
		return errorResponse(c, "h.queueService.PromoteNext()", err)
	}

	return c.JSON(http.StatusOK, r)
}

func (h *Handlers) CompleteReservation(c echo.Context) error {
	id := c.Param("id")

	r, err := h.queueService.Complete(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, fmt.Sprintf("h.queueService.Complete(%v)", id), err)
	}

	return c.JSON(http.StatusOK, r)
}

func (h *Handlers) CompleteCurrent(c echo.Context) error {
	r, err := h.queueService.CompleteCurrent(c.Request().Context())
	if err != nil {
		return errorResponse(c, "h.queueService.CompleteCurrent()", err)
	}

	return c.JSON(http.StatusOK, r)
}

func (h *Handlers) ClearCompleted(c echo.Context) error {
	removed, err := h.queueService.ClearCompleted(c.Request().Context())
	if err != nil {
		return errorResponse(c, "h.queueService.ClearCompleted()", err)
	}

	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

// Reset is gated by a shared password. An unset password disables it.
func (h *Handlers) Reset(c echo.Context) error {
	password := c.QueryParam("password")
	if h.cfg.ResetPassword == "" || password != h.cfg.ResetPassword {
		return errorResponse(c, "Reset", ErrForbidden.WithMessage("wrong password"))
	}

	if err := h.queueService.Reset(c.Request().Context()); err != nil {
		return errorResponse(c, "h.queueService.Reset()", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}

// StreamEvents pushes every queue event to the client as Server-Sent Events
// until the client goes away.
func (h *Handlers) StreamEvents(c echo.Context) error {
	events, unsubscribe := h.broadcaster.Subscribe()
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	keepAlive := time.NewTicker(h.cfg.SSEKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return nil
			}
			w.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// GetRegistrationLink returns what the display board encodes in its QR code.
func (h *Handlers) GetRegistrationLink(c echo.Context) error {
	now := h.queueService.Now()
	schedule := h.queueService.Schedule()
	token := schedule.TokenFor(now)

	return c.JSON(http.StatusOK, RegistrationLink{
		Token:     token,
		URL:       registerURL(h.cfg.FrontendBase, token),
		Accepting: schedule.Accepting(now),
	})
}

func (h *Handlers) GetRealtimeToken(c echo.Context) error {
	if h.pubNub == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "realtime updates are disabled"})
	}

	token, err := h.pubNub.GenGrantToken(c.Request().Context(), h.cfg.PubNubChannel)
	if err != nil {
		slog.Error("h.pubNub.GenGrantToken()", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"token": token, "channel": h.cfg.PubNubChannel})
}

func registerURL(base, token string) string {
	return fmt.Sprintf("%s/register?token=%s", base, url.QueryEscape(token))
}
