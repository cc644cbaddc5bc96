// Package server exposes the HTTP surface: the WebSocket upgrade endpoint,
// the health check, and a built-in test page that speaks the relay protocol.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades HTTP requests to WebSocket connections and hands
// them to the hub, which starts the connection's pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		hub.Register(NewClient(conn, hub, r.RemoteAddr))
	}
}

// HealthHandler reports that the relay is up, along with current room and
// membership counts.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rooms, memberships := hub.Registry().Stats()
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "chatrelay is running: %d room(s), %d membership(s)\n", rooms, memberships)
	}
}

// TestPageHandler serves a minimal HTML client for exercising the relay by
// hand: bind an identity, join a chat, and send typing and message events.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>chatrelay test client</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #events { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background: #f9f9f9; }
        input { padding: 4px; margin-right: 6px; }
        button { padding: 4px 12px; }
    </style>
</head>
<body>
    <h1>chatrelay test client</h1>
    <div>
        <input id="userId" placeholder="user id">
        <button onclick="setup()">setup</button>
        <input id="chatId" placeholder="chat id">
        <button onclick="joinChat()">join chat</button>
    </div>
    <div>
        <input id="recipients" placeholder="recipient ids (comma separated)">
        <input id="content" placeholder="message">
        <button onclick="sendMessage()">send</button>
        <button onclick="sendEvent({event:'typing',chatId:chatId.value})">typing</button>
        <button onclick="sendEvent({event:'stopTyping',chatId:chatId.value})">stop typing</button>
    </div>
    <div id="events"></div>
    <script>
        const events = document.getElementById('events');
        const ws = new WebSocket('ws://' + location.host + '/ws');
        function show(text) {
            const line = document.createElement('div');
            line.textContent = text;
            events.appendChild(line);
            events.scrollTop = events.scrollHeight;
        }
        ws.onopen = () => show('-- connection open --');
        ws.onclose = () => show('-- connection closed --');
        ws.onmessage = (e) => show('<< ' + e.data);
        function sendEvent(frame) {
            ws.send(JSON.stringify(frame));
            show('>> ' + JSON.stringify(frame));
        }
        function setup() { sendEvent({event: 'setup', userId: userId.value}); }
        function joinChat() { sendEvent({event: 'joinChat', chatId: chatId.value}); }
        function sendMessage() {
            const users = recipients.value.split(',').map(s => ({_id: s.trim()})).filter(u => u._id);
            users.push({_id: userId.value});
            sendEvent({event: 'newMessage', message: {
                chat: {_id: chatId.value, users: users},
                sender: {_id: userId.value},
                content: content.value
            }});
        }
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing test page: %v", err)
	}
}
