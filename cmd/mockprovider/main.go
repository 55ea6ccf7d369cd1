// mockprovider is a runnable fake of the remote mail API for local
// development: a start-sync warmup phase, paginated updated-since-token
// responses over a generated mailbox, and a send endpoint.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/postwing/postwing/internal/models"
	"github.com/postwing/postwing/internal/provider"
)

type mockState struct {
	mu          sync.Mutex
	startCalls  int
	warmupCalls int
	pageSize    int
	mailbox     []models.Message
	deltaSerial int
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	state := &mockState{
		warmupCalls: envInt("WARMUP_CALLS", 2),
		pageSize:    envInt("PAGE_SIZE", 25),
		mailbox:     generateMailbox(envInt("MAILBOX_SIZE", 120)),
	}

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1/email")
	{
		v1.POST("/sync", state.handleStartSync)
		v1.GET("/sync/updated", state.handleFetchUpdated)
		v1.POST("/messages", state.handleSendMessage)
	}

	addr := fmt.Sprintf(":%s", port)
	log.Printf("Starting mock provider on %s (%d messages, page size %d)", addr, len(state.mailbox), state.pageSize)
	log.Fatal(http.ListenAndServe(addr, r))
}

func (s *mockState) handleStartSync(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startCalls++
	if s.startCalls <= s.warmupCalls {
		c.JSON(http.StatusOK, provider.StartSyncResponse{Ready: false})
		return
	}
	s.deltaSerial++
	c.JSON(http.StatusOK, provider.StartSyncResponse{
		Ready:            true,
		SyncUpdatedToken: fmt.Sprintf("delta-%d", s.deltaSerial),
	})
}

func (s *mockState) handleFetchUpdated(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := 0
	if pageToken := c.Query("pageToken"); pageToken != "" {
		parsed, err := strconv.Atoi(pageToken)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pageToken"})
			return
		}
		offset = parsed
	} else if c.Query("deltaToken") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deltaToken or pageToken required"})
		return
	}

	end := offset + s.pageSize
	if end > len(s.mailbox) {
		end = len(s.mailbox)
	}

	page := provider.UpdatedPage{Records: s.mailbox[offset:end]}
	if end < len(s.mailbox) {
		page.NextPageToken = strconv.Itoa(end)
	} else {
		s.deltaSerial++
		page.NextDeltaToken = fmt.Sprintf("delta-%d", s.deltaSerial)
	}
	c.JSON(http.StatusOK, page)
}

func (s *mockState) handleSendMessage(c *gin.Context) {
	var msg provider.OutgoingMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, provider.SendResult{ID: uuid.NewString()})
}

func generateMailbox(size int) []models.Message {
	people := []models.MessageAddress{
		{Name: "Ada Lovelace", Address: "ada@example.com"},
		{Name: "Grace Hopper", Address: "grace@example.com"},
		{Name: "Alan Kay", Address: "alan@example.com"},
		{Name: "Barbara Liskov", Address: "barbara@example.com"},
	}

	out := make([]models.Message, 0, size)
	base := time.Now().Add(-time.Duration(size) * time.Hour)
	for i := 0; i < size; i++ {
		from := people[i%len(people)]
		to := people[(i+1)%len(people)]
		sentAt := base.Add(time.Duration(i) * time.Hour)

		labels := []string{"inbox"}
		if i%7 == 0 {
			labels = []string{"sent"}
		}

		out = append(out, models.Message{
			ID:          fmt.Sprintf("msg-%04d", i),
			ThreadID:    fmt.Sprintf("thread-%03d", i/3),
			CreatedTime: sentAt,
			SentAt:      sentAt,
			ReceivedAt:  sentAt.Add(2 * time.Second),
			Subject:     fmt.Sprintf("Quarterly planning update %d", i/3),
			SysLabels:   labels,
			From:        from,
			To:          []models.MessageAddress{to},
			Body:        fmt.Sprintf("<p>Status report %d from %s.</p>", i, from.Name),
			BodySnippet: fmt.Sprintf("Status report %d", i),
		})
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
