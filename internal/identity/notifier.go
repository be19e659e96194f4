package identity

import "go.uber.org/zap"

// NoticeLevel is the severity of a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a blocking message for the end user.
type Notice struct {
	Level   NoticeLevel
	Title   string
	Message string
}

// Notifier surfaces notices to the end user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f.
func (f NotifierFunc) Notify(n Notice) { f(n) }

type logNotifier struct {
	logger *zap.Logger
}

func (l logNotifier) Notify(n Notice) {
	l.logger.Info("notice",
		zap.String("level", string(n.Level)),
		zap.String("title", n.Title),
		zap.String("message", n.Message))
}
