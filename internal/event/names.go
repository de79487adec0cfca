package event

// 记录器自身及生命周期回调产生的保留事件名
const (
	NamePluginLoad         = "_plugin_load"
	NamePluginUnload       = "_plugin_unload"
	NameNewGameSession     = "_new_gamesession"
	NameExistingClient     = "_existing_client"
	NameLevelInit          = "_level_init"
	NameServerActivate     = "_server_activate"
	NameLevelShutdown      = "_level_shutdown"
	NameClientActive       = "_client_active"
	NameClientDisconnect   = "_client_disconnect"
	NameClientPutInServer  = "_client_put_in_server"
	NameClientConnect      = "_client_connect"
	NameNetworkIDValidated = "_network_id_validated"
)

// 游戏自身事件中被名册跟踪的事件名
const (
	NamePlayerTeam = "player_team"
	NamePlayerHurt = "player_hurt"
)

// 保留属性键
const (
	KeyMapName    = "map_name"
	KeyPlayerName = "player_name"
	KeyUserID     = "userid"
	KeyTeam       = "team"
	KeyNetworkID  = "networkid"
	KeyHealth     = "health"
	KeyAddress    = "address"
	KeyClientMax  = "client_max"
	KeyAppID      = "app_id"
	KeyGameDir    = "game_dir"
)
