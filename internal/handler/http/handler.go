package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/handler/middleware"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/identity"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/session"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/websocket"
	"github.com/gin-gonic/gin"
	gorilla_ws "github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const refreshCookie = "refreshToken"

type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (identity.Identity, error)
	SignOut(ctx context.Context, userID, refreshToken string) error
}

type Handler struct {
	sessions  *session.Registry
	auth      Authenticator
	wsManager *websocket.Manager
	log       *slog.Logger
	jwtSecret string
	upgrader  gorilla_ws.Upgrader
}

func NewHandler(sessions *session.Registry, auth Authenticator, wsManager *websocket.Manager, log *slog.Logger, jwtSecret string) *Handler {
	return &Handler{
		sessions:  sessions,
		auth:      auth,
		wsManager: wsManager,
		log:       log,
		jwtSecret: jwtSecret,
		upgrader: gorilla_ws.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.register)
			auth.POST("/login", h.login)
			auth.POST("/logout", middleware.AuthMiddleware(h.jwtSecret, h.log), h.logout)
		}

		authed := api.Group("", middleware.AuthMiddleware(h.jwtSecret, h.log))
		{
			portfolio := authed.Group("/portfolio")
			{
				portfolio.GET("", h.getPortfolio)
				portfolio.POST("/trade", h.trade)
				portfolio.POST("/deposit", h.deposit)
				portfolio.GET("/transactions", h.getTransactions)
			}

			competition := authed.Group("/competition")
			{
				competition.GET("", h.getCompetition)
				competition.POST("/enter", h.enterCompetition)
				competition.POST("/reset", h.resetCompetition)
				competition.GET("/leaderboard", h.getLeaderboard)
			}

			authed.GET("/sync", h.getSync)
			authed.GET("/ws", h.wsConnect)
		}
	}
}

type authRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "user created successfully", "userId": userID})
}

func (h *Handler) login(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	sess, err := h.sessions.Establish(c.Request.Context(), session.Principal{UserID: id.UserID, Name: id.Name})
	if err != nil {
		h.log.Error("failed to establish session", "userID", id.UserID, slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not load your account, try again"})
		return
	}

	view, err := sess.View()
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.SetCookie(refreshCookie, id.RefreshToken, int(time.Hour*24*30/time.Second), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"accessToken": id.AccessToken, "portfolio": view})
}

func (h *Handler) logout(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	refresh, _ := c.Cookie(refreshCookie)

	if err := h.auth.SignOut(c.Request.Context(), userID, refresh); err != nil {
		h.log.Warn("sign out finished with provider error", "userID", userID, slog.Any("error", err))
	}
	h.sessions.Teardown(userID)

	c.SetCookie(refreshCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.sessions.Get(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) getPortfolio(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	view, err := sess.View()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type tradeRequest struct {
	Type   string `json:"type" binding:"required,oneof=BUY SELL"`
	Symbol string `json:"symbol" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) trade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	sess, ok := h.session(c)
	if !ok {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount format"})
		return
	}

	// Orders always fill at the latest feed price.
	price, ok := sess.Quote(req.Symbol)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no market price for symbol"})
		return
	}

	tx, err := sess.Trade(models.TransactionType(req.Type), req.Symbol, amount, price)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.respondWithPortfolio(c, sess, gin.H{"transaction": tx})
}

type depositRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, ok := h.session(c)
	if !ok {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount format"})
		return
	}

	tx, err := sess.Deposit(amount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.respondWithPortfolio(c, sess, gin.H{"transaction": tx})
}

func (h *Handler) getTransactions(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	state, err := sess.State()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": state.Transactions})
}

func (h *Handler) getCompetition(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	view, err := sess.View()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Competition)
}

func (h *Handler) enterCompetition(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := sess.EnterCompetition(); err != nil {
		h.writeError(c, err)
		return
	}
	h.respondWithPortfolio(c, sess, gin.H{})
}

func (h *Handler) resetCompetition(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := sess.ResetCompetition(); err != nil {
		h.writeError(c, err)
		return
	}
	h.respondWithPortfolio(c, sess, gin.H{})
}

func (h *Handler) getLeaderboard(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	pool, err := sess.Pool(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if pool == nil {
		pool = []models.LeaderboardEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": pool})
}

func (h *Handler) getSync(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": sess.Synced()})
}

func (h *Handler) wsConnect(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	view, err := sess.View()
	if err != nil {
		h.writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := &websocket.Client{
		Manager:  h.wsManager,
		Conn:     conn,
		Identity: sess.Identity(),
		Send:     make(chan []byte, 256),
	}

	if !h.wsManager.Register(client) {
		conn.Close()
		return
	}
	h.wsManager.NotifyPortfolio(client.Identity, view)
	if pool, err := sess.Pool(c.Request.Context()); err == nil {
		h.wsManager.NotifyPool(client.Identity, pool)
	}

	go client.Writer()
	go client.Reader()
}

func (h *Handler) respondWithPortfolio(c *gin.Context, sess *session.Session, body gin.H) {
	view, err := sess.View()
	if err != nil {
		h.writeError(c, err)
		return
	}
	body["portfolio"] = view
	c.JSON(http.StatusOK, body)
}
