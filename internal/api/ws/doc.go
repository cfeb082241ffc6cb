// Package ws streams download job progress over WebSocket.
//
// On connect the server sends the active jobs, then one frame per job state
// change until the client disconnects.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - jobs: Ask for the active job list again
//
// Message Types (Server → Client):
//   - jobs: Active job snapshots
//   - job: One job changed state
//   - pong: Reply to ping
//   - error: Unknown request
//
// Example Usage:
//
//	handler := ws.NewHandler(mirrorService, logger)
//	router.GET("/jobs/ws", handler.HandleConnection)
package ws
