package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id,omitempty"`
	PlayerName      string `json:"player_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	PlayerName      string `json:"player_name"`
	Rank            string `json:"rank,omitempty"`
	FirstJoin       bool   `json:"first_join,omitempty"`
	MOTD            string `json:"motd,omitempty"`
}

// ERROR (server -> client, then the connection closes)
type ErrorMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// KICK (server -> client, forced disconnect)
type KickMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
