package devserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/rs/zerolog"

	"github.com/tOgg1/inboxsync/internal/logging"
	"github.com/tOgg1/inboxsync/internal/models"
)

type sendRequest struct {
	Text string `json:"text"`
}

type inboundRequest struct {
	Text        string `json:"text"`
	DisplayName string `json:"display_name"`
}

// Server exposes a Store over the inbox HTTP API.
type Server struct {
	store  *Store
	token  string
	echo   *echo.Echo
	logger zerolog.Logger
}

// NewServer creates a server over store. When token is non-empty every
// request must carry it as a bearer credential.
func NewServer(store *Store, token string) *Server {
	s := &Server{
		store:  store,
		token:  strings.TrimSpace(token),
		echo:   echo.New(),
		logger: logging.Component("devserver"),
	}
	s.registerRoutes(s.echo)
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	g := e.Group("/conversations")
	g.GET("", s.listConversations)
	g.GET("/:id/messages", s.listMessages)
	g.POST("/:id/send", s.send)
	g.POST("/:id/read", s.markRead)
	g.POST("/:id/inbound", s.inbound)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info().Str("addr", listener.Addr().String()).Bool("auth", s.token != "").Msg("devserver listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requireAuth(c *echo.Context) error {
	if s.token == "" {
		return nil
	}
	header := c.Request().Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.token)) != 1 {
		s.logger.Debug().Str("path", c.Request().URL.Path).Interface("headers", logging.RedactHeader(c.Request().Header)).Msg("rejected request")
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return nil
}

func conversationID(c *echo.Context) (string, error) {
	id, err := url.PathUnescape(c.Param("id"))
	if err != nil || strings.TrimSpace(id) == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid conversation id")
	}
	return id, nil
}

func (s *Server) storeError(err error) error {
	var validation *models.ValidationErrors
	switch {
	case errors.Is(err, ErrConversationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.As(err, &validation), errors.Is(err, models.ErrMissingConversationID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("store failure")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) listConversations(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	convs, err := s.store.ListConversations(c.Request().Context())
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, convs)
}

func (s *Server) listMessages(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	msgs, err := s.store.ListMessages(c.Request().Context(), id)
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) send(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text required")
	}

	msg, err := s.store.AppendMessage(c.Request().Context(), models.Message{
		ConversationID: id,
		Direction:      models.DirectionOutbound,
		Kind:           models.KindText,
		Content:        models.StringPtr(req.Text),
		DeliveryStatus: models.DeliverySent,
	})
	if err != nil {
		return s.storeError(err)
	}
	logger := logging.WithConversation(s.logger, id)
	logger.Info().Str("message_id", msg.ID).Msg("message sent")
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) markRead(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	if err := s.store.MarkRead(c.Request().Context(), id); err != nil {
		return s.storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// inbound simulates a customer message arriving. The conversation is
// created on first contact.
func (s *Server) inbound(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	var req inboundRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text required")
	}

	ctx := c.Request().Context()
	msg, err := s.store.Inbound(ctx, id, req.DisplayName, req.Text)
	if err != nil {
		return s.storeError(err)
	}
	logger := logging.WithConversation(s.logger, id)
	logger.Info().Str("message_id", msg.ID).Msg("inbound message")
	return c.JSON(http.StatusCreated, msg)
}
