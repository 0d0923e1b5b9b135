package core

type NoticeKind string

const (
	NoticePermission  NoticeKind = "permission"
	NoticeWriteFailed NoticeKind = "write_failed"
	NoticeSendFailed  NoticeKind = "send_failed"
	NoticeSeatTaken   NoticeKind = "seat_taken"
	NoticeTransport   NoticeKind = "transport"
)

// Notifier surfaces transient user-facing notices.
type Notifier interface {
	Notice(kind NoticeKind, msg string)
}

// NotifierFunc adapts a func to Notifier.
type NotifierFunc func(kind NoticeKind, msg string)

func (f NotifierFunc) Notice(kind NoticeKind, msg string) { f(kind, msg) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(NoticeKind, string) {})
