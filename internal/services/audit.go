package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/pkg/logger"
	"gorm.io/gorm"
)

const (
	AuditActionUserCreate   = "user.create"
	AuditActionUserLogin    = "user.login"
	AuditActionUserSignup   = "user.signup"
	AuditActionRoleChange   = "user.role_change"
	AuditActionActiveChange = "user.active_change"
	AuditActionLineLink     = "user.line_link"
	AuditActionLineUnlink   = "user.line_unlink"
)

type AuditEntry struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]interface{}
	IPAddress    string
	RequestID    string
}

// AuditService writes audit rows from a single background worker so request
// handlers never wait on the insert. A nil *AuditService drops every entry.
type AuditService struct {
	DB    *gorm.DB
	queue chan models.AuditLog
	done  chan struct{}

	// mu guards closed; senders hold the read lock so Close never closes the
	// queue under them.
	mu     sync.RWMutex
	closed bool
}

func NewAuditService(db *gorm.DB, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	s := &AuditService{
		DB:    db,
		queue: make(chan models.AuditLog, queueSize),
		done:  make(chan struct{}),
	}
	go s.processQueue()
	return s
}

func (s *AuditService) LogAsync(entry AuditEntry) {
	if s == nil {
		return
	}

	row := models.AuditLog{
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logger.Warn("audit_service_closed", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
		return
	}

	select {
	case s.queue <- row:
	default:
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

func (s *AuditService) processQueue() {
	defer close(s.done)
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
		}
	}
}

// Close stops accepting entries and waits for queued rows to be written or
// for ctx to expire. Entries logged after Close are dropped.
func (s *AuditService) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForUser returns the most recent audit rows about a user.
func (s *AuditService) ForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := s.DB.WithContext(ctx).
		Where("user_id = ? OR resource_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
