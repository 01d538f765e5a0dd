package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/relayops/chatbridge/internal/models"
)

// openTestDB opens an in-memory SQLite database migrated with all bridge
// models. MaxOpenConns(1) keeps every goroutine on the same memory database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.ChatThread{}, &models.ChatMessage{}, &models.Job{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

type replyCall struct {
	Ref    ThreadRef
	UserID string
	Text   string
}

type updateCall struct {
	Ref    ThreadRef
	Header Header
}

// mockGateway records gateway calls and injects failures.
type mockGateway struct {
	mu          sync.Mutex
	threads     []Header
	replies     []replyCall
	updates     []updateCall
	notices     []string
	nextTS      int
	postErr     error
	replyErr    error
	updateErr   error
	noticeErr   error
	closed      bool
}

func newMockGateway() *mockGateway { return &mockGateway{} }

func (g *mockGateway) PostThread(ctx context.Context, h Header) (ThreadRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.postErr != nil {
		return ThreadRef{}, g.postErr
	}
	g.nextTS++
	g.threads = append(g.threads, h)
	return ThreadRef{ChannelID: "C01", MessageTS: fmt.Sprintf("1717000000.%06d", g.nextTS)}, nil
}

func (g *mockGateway) PostReply(ctx context.Context, ref ThreadRef, userID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.replyErr != nil {
		return g.replyErr
	}
	g.replies = append(g.replies, replyCall{Ref: ref, UserID: userID, Text: text})
	return nil
}

func (g *mockGateway) UpdateHeader(ctx context.Context, ref ThreadRef, h Header) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return g.updateErr
	}
	g.updates = append(g.updates, updateCall{Ref: ref, Header: h})
	return nil
}

func (g *mockGateway) PostNotice(ctx context.Context, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.noticeErr != nil {
		return g.noticeErr
	}
	g.notices = append(g.notices, text)
	return nil
}

func (g *mockGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *mockGateway) threadCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.threads)
}

func (g *mockGateway) replyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.replies)
}

// testJob is the order summary used across scenario tests.
var testJob = JobSummary{
	JobID:        42,
	CustomerName: "A",
	Email:        "a@x.com",
	Phone1Number: "555",
}

func seedJob(t *testing.T, db *gorm.DB) {
	t.Helper()
	job := models.Job{JobID: 42, CustomerName: "A", Email: "a@x.com", Phone1Number: "555"}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
}
