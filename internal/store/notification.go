package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"spotbook/internal/logger"
	"spotbook/internal/metrics"
	"spotbook/internal/types"
)

// ToastType is the severity of a notification
type ToastType string

const (
	ToastInfo    ToastType = "info"
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
)

const defaultToastCapacity = 50

// Toast is one user-facing notification
type Toast struct {
	ID        string    `json:"id"`
	Type      ToastType `json:"type"`
	Text      string    `json:"text"`
	Hash      string    `json:"hash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

var _ types.Toaster = (*NotificationStore)(nil)

// NotificationStore keeps the most recent toasts in a bounded ring
type NotificationStore struct {
	mu      sync.RWMutex
	ring    []Toast
	next    int
	full    bool
	log     *logrus.Entry
	metrics *metrics.Metrics
	onToast func(Toast)
}

// NewNotificationStore creates a store holding up to capacity toasts
func NewNotificationStore(capacity int, m *metrics.Metrics) *NotificationStore {
	if capacity <= 0 {
		capacity = defaultToastCapacity
	}
	return &NotificationStore{
		ring:    make([]Toast, capacity),
		log:     logger.WithComponent("notifications"),
		metrics: m,
	}
}

// OnToast registers a callback invoked for every new toast
func (s *NotificationStore) OnToast(fn func(Toast)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onToast = fn
}

// Info pushes an informational toast
func (s *NotificationStore) Info(text string) {
	s.push(ToastInfo, text, "")
}

// Success pushes a success toast, linking hash when set
func (s *NotificationStore) Success(text, hash string) {
	s.push(ToastSuccess, text, hash)
}

// Error pushes an error toast
func (s *NotificationStore) Error(text string) {
	s.push(ToastError, text, "")
}

func (s *NotificationStore) push(kind ToastType, text, hash string) {
	toast := Toast{
		ID:        uuid.NewString(),
		Type:      kind,
		Text:      text,
		Hash:      hash,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.ring[s.next] = toast
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
	onToast := s.onToast
	s.mu.Unlock()

	entry := s.log.WithField("type", kind)
	if hash != "" {
		entry = entry.WithField("tx", hash)
	}
	if kind == ToastError {
		entry.Warn(text)
	} else {
		entry.Info(text)
	}

	s.metrics.RecordToast(string(kind))
	if onToast != nil {
		onToast(toast)
	}
}

// Toasts returns the retained toasts, oldest first
func (s *NotificationStore) Toasts() []Toast {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.full {
		return append([]Toast(nil), s.ring[:s.next]...)
	}
	out := make([]Toast, 0, len(s.ring))
	out = append(out, s.ring[s.next:]...)
	return append(out, s.ring[:s.next]...)
}

// Clear drops every toast
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = make([]Toast, len(s.ring))
	s.next = 0
	s.full = false
}
