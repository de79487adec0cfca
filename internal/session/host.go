package session

import (
	"sort"
	"strconv"
	"sync"

	"GoEventLogger/internal/event"
)

// Host 宿主进程的只读快照，用于补录记录器挂载前已存在的状态
type Host interface {
	// MapName 当前地图，未知时为空
	MapName() string
	// Clients 当前已连接的客户端
	Clients() []Client
}

// Client 一个已占用的客户端槽位
type Client struct {
	Slot int
	// Info 为 nil 表示取不到玩家信息，补录时跳过
	Info *PlayerInfo
}

// PlayerInfo 玩家信息
type PlayerInfo struct {
	Name   string
	UserID int64
	Team   int64
	// NetworkID 为空表示没有网络身份
	NetworkID string
	Health    int64
}

// Roster 通过观察事件维护的宿主快照。
// 适用于宿主在进程外、只能通过事件流了解状态的部署方式。
type Roster struct {
	mu       sync.RWMutex
	mapName  string
	nextSlot int
	clients  map[int64]*Client
}

// NewRoster 创建空名册
func NewRoster() *Roster {
	return &Roster{
		nextSlot: 1,
		clients:  make(map[int64]*Client),
	}
}

// MapName 实现 Host
func (r *Roster) MapName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mapName
}

// Clients 实现 Host，按槽位排序并返回副本
func (r *Roster) Clients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		cp := Client{Slot: c.Slot}
		if c.Info != nil {
			info := *c.Info
			cp.Info = &info
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Observe 根据事件更新名册
func (r *Roster) Observe(ev *event.Event) {
	if ev == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Name {
	case event.NameLevelInit, event.NameNewGameSession:
		if v, ok := ev.Lookup(event.KeyMapName); ok && v.Kind() == event.KindString {
			r.mapName = v.Str()
		}

	case event.NameClientConnect:
		// 刚连接的客户端还没有玩家信息
		if uid, ok := intAttr(ev, event.KeyUserID); ok {
			r.slotFor(uid)
		}

	case event.NameClientPutInServer, event.NameExistingClient:
		uid, ok := intAttr(ev, event.KeyUserID)
		if !ok {
			return
		}
		c := r.slotFor(uid)
		if c.Info == nil {
			c.Info = &PlayerInfo{UserID: uid}
		}
		if v, ok := ev.Lookup(event.KeyPlayerName); ok {
			c.Info.Name = v.Str()
		}
		if v, ok := ev.Lookup(event.KeyNetworkID); ok {
			c.Info.NetworkID = v.Str()
		}
		if team, ok := intAttr(ev, event.KeyTeam); ok {
			c.Info.Team = team
		}
		if health, ok := intAttr(ev, event.KeyHealth); ok {
			c.Info.Health = health
		}

	case event.NameNetworkIDValidated:
		name, ok := ev.Lookup(event.KeyPlayerName)
		if !ok {
			return
		}
		networkID, _ := ev.Lookup(event.KeyNetworkID)
		for _, c := range r.clients {
			if c.Info != nil && c.Info.Name == name.Str() {
				c.Info.NetworkID = networkID.Str()
			}
		}

	case event.NameClientDisconnect:
		if uid, ok := intAttr(ev, event.KeyUserID); ok {
			delete(r.clients, uid)
		}

	case event.NamePlayerTeam:
		if c := r.known(ev); c != nil {
			if team, ok := intAttr(ev, event.KeyTeam); ok {
				c.Info.Team = team
			}
		}

	case event.NamePlayerHurt:
		if c := r.known(ev); c != nil {
			if health, ok := intAttr(ev, event.KeyHealth); ok {
				c.Info.Health = health
			}
		}
	}
}

// Reset 清空名册
func (r *Roster) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mapName = ""
	r.nextSlot = 1
	r.clients = make(map[int64]*Client)
}

func (r *Roster) slotFor(uid int64) *Client {
	c, ok := r.clients[uid]
	if !ok {
		c = &Client{Slot: r.nextSlot}
		r.nextSlot++
		r.clients[uid] = c
	}
	return c
}

func (r *Roster) known(ev *event.Event) *Client {
	uid, ok := intAttr(ev, event.KeyUserID)
	if !ok {
		return nil
	}
	c, ok := r.clients[uid]
	if !ok || c.Info == nil {
		return nil
	}
	return c
}

// intAttr 读取整数属性；经由JSON/gRPC传入的数字可能是浮点或字符串
func intAttr(ev *event.Event, key string) (int64, bool) {
	v, ok := ev.Lookup(key)
	if !ok {
		return 0, false
	}
	switch v.Kind() {
	case event.KindInt:
		return v.Int64(), true
	case event.KindFloat:
		return int64(v.Float64()), true
	case event.KindString:
		n, err := strconv.ParseInt(v.Str(), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
