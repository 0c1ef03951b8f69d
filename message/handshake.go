package message

// MethodConnect is the handshake method every connection must call first.
const MethodConnect = "connect"

// ConnectParams are the params of the handshake request.
type ConnectParams struct {
	MinProtocol int        `json:"minProtocol" cbor:"minProtocol"`
	MaxProtocol int        `json:"maxProtocol" cbor:"maxProtocol"`
	Client      ClientInfo `json:"client" cbor:"client"`
	Caps        []string   `json:"caps" cbor:"caps"`
	Role        string     `json:"role" cbor:"role"`
	Auth        Auth       `json:"auth" cbor:"auth"`
}

// ClientInfo identifies the connecting program to the gateway.
type ClientInfo struct {
	ID          string `json:"id" cbor:"id"`
	DisplayName string `json:"displayName" cbor:"displayName"`
	Version     string `json:"version" cbor:"version"`
	Platform    string `json:"platform" cbor:"platform"`
	Mode        string `json:"mode" cbor:"mode"`
}

// Auth carries the static bearer credential.
type Auth struct {
	Token string `json:"token" cbor:"token"`
}
