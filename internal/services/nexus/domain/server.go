package domain

// ServerInfo is the heartbeat record a process writes about itself.
type ServerInfo struct {
	Name          string  `json:"name"`
	OnlinePlayers int     `json:"onlinePlayers"`
	MaxPlayers    int     `json:"maxPlayers"`
	TPS           float64 `json:"tps"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Name  string
	Score float64
}
