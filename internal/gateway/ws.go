package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// cookieName carries the auto-login identity the frontend persists after a
// successful login.
const cookieName = "qubicUserId"

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ServeWS upgrades the request and pumps event frames until the client goes
// away. The user's sandboxes are torn down on disconnect; their workspace
// and build records stay.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("%s accept: %v", logTag, err)
		return
	}
	defer c.CloseNow()

	st := NewConnState()
	log.Printf("%s connected %s", logTag, st.ID)

	var writeMu sync.Mutex
	emit := func(event string, data any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wsjson.Write(ctx, c, outboundFrame{Event: event, Data: data}); err != nil {
			log.Printf("%s write %s to %s: %v", logTag, event, st.ID, err)
		}
	}

	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		g.AutoLogin(st, cookie.Value, emit)
	}

	ctx := r.Context()
	for {
		var frame inboundFrame
		if err := wsjson.Read(ctx, c, &frame); err != nil {
			break
		}
		g.HandleEvent(ctx, st, frame.Event, frame.Data, emit)
	}

	if user := st.User(); user != "" {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		g.d.Sandboxes.StopUser(cleanupCtx, user)
		cancel()
	}
	log.Printf("%s disconnected %s", logTag, st.ID)
	c.Close(websocket.StatusNormalClosure, "")
}
