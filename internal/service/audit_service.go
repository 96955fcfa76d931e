package service

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/otp-api/internal/domain/entity"
	"github.com/yourusername/otp-api/internal/domain/repository"
)

// AuditService is a best-effort, append-only sink for OTP lifecycle events.
// Writes go through a buffered channel to a single writer goroutine; a full
// buffer or a failed insert drops the event with a log line and never
// affects the flow that produced it.
type AuditService struct {
	repo   repository.AuditEventRepository
	events chan entity.AuditEvent
	done   chan struct{}
	once   sync.Once
}

// NewAuditService создает новый сервис аудита и запускает writer-горутину
func NewAuditService(repo repository.AuditEventRepository, bufferSize int) *AuditService {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	s := &AuditService{
		repo:   repo,
		events: make(chan entity.AuditEvent, bufferSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AuditService) run() {
	for event := range s.events {
		if err := s.repo.Create(&event); err != nil {
			log.Printf("[AuditService] dropped event type=%s user=%d: %v", event.Type, event.UserID, err)
		}
	}
	close(s.done)
}

// Record queues an event without blocking. Lost audit events are
// acceptable; lost OTP invariants are not.
func (s *AuditService) Record(event entity.AuditEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	select {
	case s.events <- event:
	default:
		log.Printf("[AuditService] buffer full, dropped event type=%s user=%d", event.Type, event.UserID)
	}
}

// Close flushes queued events and stops the writer. Safe to call more than
// once.
func (s *AuditService) Close() {
	s.once.Do(func() {
		close(s.events)
	})
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		log.Printf("[AuditService] shutdown timed out, some events may be lost")
	}
}
