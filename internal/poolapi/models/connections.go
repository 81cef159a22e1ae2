package models

// ConnectionResponse describes one live slot in a pool.
type ConnectionResponse struct {
	Index    int    `json:"index"`
	FD       int    `json:"fd"`
	Local    string `json:"local"`
	Remote   string `json:"remote"`
	State    string `json:"state"`
	AgeMs    int64  `json:"age_ms"`
	Buffered int    `json:"buffered_bytes"`
}

// ConnectionsResponse is the payload for GET /pools/{pool}/connections.
type ConnectionsResponse struct {
	Pool        string               `json:"pool"`
	Connections []ConnectionResponse `json:"connections"`
}
