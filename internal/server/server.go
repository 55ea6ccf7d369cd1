// Package server is the thin HTTP surface over the sync pipeline: it parses
// requests, invokes the pipeline and maps its errors to status codes.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/postwing/postwing/internal/indexer"
	"github.com/postwing/postwing/internal/models"
	"github.com/postwing/postwing/internal/provider"
	"github.com/postwing/postwing/internal/store"
	syncpkg "github.com/postwing/postwing/internal/sync"
)

type Server struct {
	store       store.Store
	coordinator *syncpkg.Coordinator
	indexer     *indexer.Indexer
	provider    provider.Client
	log         *slog.Logger
}

func New(s store.Store, c *syncpkg.Coordinator, ix *indexer.Indexer, p provider.Client, log *slog.Logger) *Server {
	return &Server{store: s, coordinator: c, indexer: ix, provider: p, log: log}
}

// Router wires the routes.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	accounts := r.Group("/accounts/:accountId")
	{
		accounts.POST("/sync/initial", s.handleInitialSync)
		accounts.POST("/sync/incremental", s.handleIncrementalSync)
		accounts.GET("/threads", s.handleListThreads)
		accounts.GET("/search", s.handleSearch)
		accounts.GET("/search/similar", s.handleVectorSearch)
		accounts.POST("/messages", s.handleSendMessage)
	}

	return r
}

func (s *Server) account(c *gin.Context) (models.Account, bool) {
	accountID, err := uuid.Parse(c.Param("accountId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return models.Account{}, false
	}
	account, err := s.store.GetAccount(c.Request.Context(), accountID)
	if errors.Is(err, store.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return models.Account{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return models.Account{}, false
	}
	return account, true
}

func (s *Server) handleInitialSync(c *gin.Context) {
	account, ok := s.account(c)
	if !ok {
		return
	}
	result, err := s.coordinator.InitialSync(c.Request.Context(), account)
	if err != nil {
		s.syncError(c, err)
		return
	}
	c.JSON(http.StatusOK, syncResponse(result))
}

func (s *Server) handleIncrementalSync(c *gin.Context) {
	account, ok := s.account(c)
	if !ok {
		return
	}
	result, err := s.coordinator.IncrementalSync(c.Request.Context(), account)
	if errors.Is(err, syncpkg.ErrNotReady) {
		c.JSON(http.StatusConflict, gin.H{"error": "initial sync has not completed for this account"})
		return
	}
	if err != nil {
		s.syncError(c, err)
		return
	}
	c.JSON(http.StatusOK, syncResponse(result))
}

func (s *Server) syncError(c *gin.Context, err error) {
	var transient *provider.TransientError
	switch {
	case errors.Is(err, provider.ErrAuthExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "provider credential expired; re-authentication required"})
	case errors.As(err, &transient), errors.Is(err, syncpkg.ErrSyncNotReady):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func syncResponse(result syncpkg.RunResult) gin.H {
	return gin.H{
		"processed":      result.Processed,
		"skipped":        result.Skipped,
		"index_failures": result.IndexFailures,
		"delta_token":    result.DeltaToken,
	}
}

func (s *Server) handleListThreads(c *gin.Context) {
	account, ok := s.account(c)
	if !ok {
		return
	}
	folder := models.EmailLabel(c.DefaultQuery("folder", string(models.LabelInbox)))
	done, _ := strconv.ParseBool(c.DefaultQuery("done", "false"))

	threads, err := s.store.ListThreads(c.Request.Context(), account.ID, folder, done)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (s *Server) handleSearch(c *gin.Context) {
	account, ok := s.account(c)
	if !ok {
		return
	}
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	hits := s.indexer.Search(account.ID, term, limit)
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

func (s *Server) handleVectorSearch(c *gin.Context) {
	account, ok := s.account(c)
	if !ok {
		return
	}
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	hits, err := s.indexer.VectorSearch(c.Request.Context(), account.ID, term, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

func (s *Server) handleSendMessage(c *gin.Context) {
	account, ok := s.account(c)
	if !ok {
		return
	}
	var msg provider.OutgoingMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.provider.SendMessage(c.Request.Context(), account, msg)
	if err != nil {
		s.syncError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
