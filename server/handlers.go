package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/internal/observability"
	"github.com/hearthfire/cookforge/plugin/ai"
	"github.com/hearthfire/cookforge/server/middleware"
	"github.com/hearthfire/cookforge/server/service/recipe"
	"github.com/hearthfire/cookforge/session"
	"github.com/hearthfire/cookforge/store"
)

// defaultChatConversationID names the session's chat conversation.
const defaultChatConversationID = "chat"

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id"`
	Reply          string `json:"reply"`
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is empty")
	}
	convID := req.ConversationID
	if convID == "" {
		convID = defaultChatConversationID
	}

	scope := middleware.ScopeFrom(c)
	sess := middleware.SessionFrom(c)

	conv, err := s.manager.GetConversation(scope.ID, convID)
	if errs.IsCode(err, errs.CodeNotFound) {
		systemPrompt, promptErr := ai.SystemPrompt(ai.CatalogChat)
		if promptErr != nil {
			return toHTTPError(promptErr)
		}
		conv, err = s.manager.InitializeConversation(scope.ID, convID, systemPrompt, ai.CatalogChat)
	}
	if err != nil {
		return toHTTPError(err)
	}

	conv.Append(session.NewMessage(ai.RoleUser, session.TextPayload(req.Message)))

	reply, err := s.chatter.Chat(c.Request().Context(), chatTranscript(conv))
	if err != nil {
		return toHTTPError(err)
	}
	conv.Append(session.NewMessage(ai.RoleAssistant, session.TextPayload(reply)))

	return c.JSON(http.StatusOK, chatResponse{
		ConversationID: convID,
		SessionID:      sess.ID,
		Reply:          reply,
	})
}

// chatTranscript flattens a conversation into provider messages. A
// structured payload is sent as its raw JSON text.
func chatTranscript(conv *session.Conversation) []ai.Message {
	messages := conv.Messages()
	out := make([]ai.Message, 0, len(messages)+1)
	out = append(out, ai.Message{Role: ai.RoleSystem, Content: conv.SystemPrompt})
	for _, msg := range messages {
		content := msg.Payload.Text
		if msg.Payload.Kind == session.PayloadStructured {
			content = string(msg.Payload.Structured)
		}
		out = append(out, ai.Message{Role: msg.Role, Content: content})
	}
	return out
}

type rankRequest struct {
	Theme      string             `json:"theme"`
	Candidates []recipe.Candidate `json:"candidates"`
}

type rankResponse struct {
	Ranked []recipe.Ranked `json:"ranked"`
}

func (s *Server) rankRecipes(c echo.Context) error {
	var req rankRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if strings.TrimSpace(req.Theme) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "theme is empty")
	}
	if len(req.Candidates) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no candidates to rank")
	}

	ranked, err := s.ranker.Rank(c.Request().Context(), middleware.ScopeFrom(c), middleware.SessionFrom(c), req.Theme, req.Candidates)
	if err != nil {
		return toHTTPError(err)
	}
	if ranked == nil {
		ranked = []recipe.Ranked{}
	}
	return c.JSON(http.StatusOK, rankResponse{Ranked: ranked})
}

type orderItemRequest struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

type createOrderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type createOrderResponse struct {
	OrderID string            `json:"order_id"`
	Status  store.OrderStatus `json:"status"`
}

func (s *Server) createOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "order has no items")
	}

	now := time.Now().Unix()
	order := &store.Order{
		UID:           store.NewOrderUID(),
		CustomerEmail: middleware.EmailFrom(c),
		Status:        store.OrderStatusPending,
		CreatedTs:     now,
		UpdatedTs:     now,
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.Title) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "order item has no title")
		}
		order.Items = append(order.Items, store.OrderItem{Title: item.Title, Notes: item.Notes})
	}

	if _, err := s.store.UpsertOrder(c.Request().Context(), order); err != nil {
		return toHTTPError(errs.ServiceUnavailable("save order", err))
	}

	go s.processOrder(order.UID)

	return c.JSON(http.StatusAccepted, createOrderResponse{OrderID: order.UID, Status: order.Status})
}

// processOrder runs a submitted order in the background under its own
// root scope. The scope detaches and the order's session ends once
// processing finishes, which persists the order session's transcripts.
func (s *Server) processOrder(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	scope := s.factory.NewScope()
	sc := observability.NewScopeContext(s.logger, scope.ID)
	ctx = observability.WithScopeContext(ctx, sc)
	defer func() {
		if err := s.manager.RemoveScopeFromSession(scope.ID); err != nil {
			s.logger.Warn("detach order scope failed",
				slog.String(observability.LogFieldScopeID, scope.ID),
				slog.String("error", err.Error()))
		}
		if err := s.manager.EndSessionByOrder(ctx, orderID); err != nil && !errs.IsCode(err, errs.CodeNotFound) {
			s.logger.Error("end order session failed",
				slog.String(observability.LogFieldOrderID, orderID),
				slog.String("error", err.Error()))
		}
	}()

	if _, err := s.processor.Process(ctx, scope, orderID); err != nil {
		s.logger.Error("background order processing failed",
			slog.String(observability.LogFieldOrderID, orderID),
			slog.String("error", err.Error()))
	}
}

func (s *Server) getOrder(c echo.Context) error {
	uid := c.Param("id")
	order, err := s.store.GetOrder(c.Request().Context(), uid)
	if err != nil {
		return toHTTPError(errs.ServiceUnavailable("load order", err))
	}
	if order == nil || order.CustomerEmail != middleware.EmailFrom(c) {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	return c.JSON(http.StatusOK, order)
}

func (s *Server) listOrders(c echo.Context) error {
	orders, err := s.store.ListOrdersByCustomer(c.Request().Context(), middleware.EmailFrom(c))
	if err != nil {
		return toHTTPError(errs.ServiceUnavailable("list orders", err))
	}
	if orders == nil {
		orders = []*store.Order{}
	}
	return c.JSON(http.StatusOK, orders)
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.profile.Version,
	})
}
