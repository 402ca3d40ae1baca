package webui

import (
	"context"
	"sync"
)

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "info"
}

// Notification is a message shown to the user.
type Notification struct {
	Level   Level
	Message string
	// Key is set for notifications about a field edit.
	Key *FieldKey
}

// Notifier surfaces notifications to the user. It is called from the
// controller's event loop and must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Recorder keeps every notification. It is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
}

func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}

// User-facing messages.
const (
	msgInvalidNumber = "Số tiền không hợp lệ"
	msgSaveFailed    = "Không lưu được thay đổi"
	msgOffline       = "Không kết nối được máy chủ"
	msgCreateFailed  = "Không thêm được khoản chi"
	msgReloadFailed  = "Không tải lại được trang"
)
