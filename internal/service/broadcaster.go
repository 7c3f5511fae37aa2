package service

import "fmt"

// 实时事件名
const (
	EventMessageNew      = "message:new"
	EventMessageSent     = "message:sent"
	EventMessageRead     = "message:read"
	EventMessageEdited   = "message:edited"
	EventMessageDeleted  = "message:deleted"
	EventUserOnline      = "user:online"
	EventUserOffline     = "user:offline"
	EventContactRequest  = "contact:request"
	EventContactAccepted = "contact:accepted"
)

// Broadcaster 向房间内当前在线的连接推送事件。
// 只在进程启动时构造一次并注入到各服务，没有离线重放。
type Broadcaster interface {
	EmitToRoom(room, event string, payload interface{})
}

// UserRoom 用户个人房间
func UserRoom(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

// GroupRoom 辅导小组房间
func GroupRoom(groupID int64) string {
	return fmt.Sprintf("group-%d", groupID)
}

type nopBroadcaster struct{}

func (nopBroadcaster) EmitToRoom(string, string, interface{}) {}

func orNop(b Broadcaster) Broadcaster {
	if b == nil {
		return nopBroadcaster{}
	}
	return b
}
