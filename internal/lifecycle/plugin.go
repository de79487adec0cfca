package lifecycle

import (
	"context"

	"GoEventLogger/internal/event"
	"GoEventLogger/internal/recorder"
)

// Listener 宿主生命周期通知。每个方法对应宿主的一个回调。
type Listener interface {
	Load(ctx context.Context) error
	Unload(ctx context.Context)
	LevelInit(ctx context.Context, mapName string)
	ServerActivate(ctx context.Context, clientMax int, appID int, gameDir string)
	GameFrame(ctx context.Context, simulating bool)
	LevelShutdown(ctx context.Context)
	ClientActive(ctx context.Context, userID int64, networkID string)
	ClientDisconnect(ctx context.Context, userID int64, networkID string)
	ClientPutInServer(ctx context.Context, playerName string, userID int64, networkID string)
	ClientConnect(ctx context.Context, playerName string, userID int64, address, networkID string)
	NetworkIDValidated(ctx context.Context, userName, networkID string)
	FireGameEvent(ctx context.Context, ev *event.Event)
}

// Engine 插件驱动的记录引擎
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	Log(ctx context.Context, ev *event.Event) (recorder.Result, error)
	Tick(ctx context.Context, simulating bool) bool
}

// Plugin 将宿主回调整形为保留事件并交给引擎。
// 生产者不关心记录结果：存储不可用时事件被静默丢弃。
type Plugin struct {
	engine Engine
}

var _ Listener = (*Plugin)(nil)

// NewPlugin 创建插件
func NewPlugin(engine Engine) *Plugin {
	return &Plugin{engine: engine}
}

// Load 连接存储、开启会话并记录 _plugin_load。
// 存储不可用不阻止加载，返回的错误仅供上报。
func (p *Plugin) Load(ctx context.Context) error {
	return p.engine.Start(ctx)
}

// Unload 记录 _plugin_unload 并释放连接
func (p *Plugin) Unload(ctx context.Context) {
	p.engine.Stop(ctx)
}

func (p *Plugin) LevelInit(ctx context.Context, mapName string) {
	p.log(ctx, event.New(event.NameLevelInit, event.StringAttr(event.KeyMapName, mapName)))
}

func (p *Plugin) ServerActivate(ctx context.Context, clientMax int, appID int, gameDir string) {
	p.log(ctx, event.New(event.NameServerActivate,
		event.IntAttr(event.KeyClientMax, int64(clientMax)),
		event.IntAttr(event.KeyAppID, int64(appID)),
		event.StringAttr(event.KeyGameDir, gameDir),
	))
}

// GameFrame 每帧调用，驱动心跳
func (p *Plugin) GameFrame(ctx context.Context, simulating bool) {
	p.engine.Tick(ctx, simulating)
}

// LevelShutdown 换图时可能被调用多次，每次都记录
func (p *Plugin) LevelShutdown(ctx context.Context) {
	p.log(ctx, event.New(event.NameLevelShutdown))
}

func (p *Plugin) ClientActive(ctx context.Context, userID int64, networkID string) {
	ev := event.New(event.NameClientActive).SetInt(event.KeyUserID, userID)
	p.log(ctx, withNetworkID(ev, networkID))
}

func (p *Plugin) ClientDisconnect(ctx context.Context, userID int64, networkID string) {
	ev := event.New(event.NameClientDisconnect).SetInt(event.KeyUserID, userID)
	p.log(ctx, withNetworkID(ev, networkID))
}

func (p *Plugin) ClientPutInServer(ctx context.Context, playerName string, userID int64, networkID string) {
	ev := event.New(event.NameClientPutInServer).
		SetString(event.KeyPlayerName, playerName).
		SetInt(event.KeyUserID, userID)
	p.log(ctx, withNetworkID(ev, networkID))
}

func (p *Plugin) ClientConnect(ctx context.Context, playerName string, userID int64, address, networkID string) {
	ev := event.New(event.NameClientConnect).
		SetString(event.KeyPlayerName, playerName).
		SetInt(event.KeyUserID, userID).
		SetString(event.KeyAddress, address)
	p.log(ctx, withNetworkID(ev, networkID))
}

func (p *Plugin) NetworkIDValidated(ctx context.Context, userName, networkID string) {
	p.log(ctx, event.New(event.NameNetworkIDValidated,
		event.StringAttr(event.KeyPlayerName, userName),
		event.StringAttr(event.KeyNetworkID, networkID),
	))
}

// FireGameEvent 游戏自身的事件原样记录
func (p *Plugin) FireGameEvent(ctx context.Context, ev *event.Event) {
	p.log(ctx, ev)
}

func (p *Plugin) log(ctx context.Context, ev *event.Event) {
	_, _ = p.engine.Log(ctx, ev)
}

// withNetworkID 网络ID未知时省略该属性
func withNetworkID(ev *event.Event, networkID string) *event.Event {
	if networkID != "" {
		ev.SetString(event.KeyNetworkID, networkID)
	}
	return ev
}
