package session

import (
	"time"

	"GoEventLogger/internal/database"
)

// Session 一次连接生命周期内的会话。
// 每次成功连接都会生成新的会话行，旧ID不会再被引用。
type Session struct {
	ID       database.SessionID `json:"id"`
	MapName  string             `json:"map_name,omitempty"`
	OpenedAt time.Time          `json:"opened_at"`
}
