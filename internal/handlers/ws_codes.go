// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the arena socket.
const (
	BadSubprotocolError   = 3000 // Client connected without the arena subprotocol.
	InvalidAuthTokenError = 3001 // Missing, invalid or expired auth token.
	InvalidUserIDError    = 3002 // Token subject was not a usable user id.
	ServerShutdownError   = 3005 // The server is going away.
)
