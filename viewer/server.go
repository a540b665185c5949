/*
Copyright © 2024 the Pan3D authors.
This file is part of Pan3D.

Pan3D is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Pan3D is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Pan3D.  If not, see <http://www.gnu.org/licenses/>.
*/

package viewer

import (
	"encoding/json"
	"html/template"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/pan3d"
)

// message is the websocket message format in both directions.
type message struct {
	Type    string                 `json:"type"`
	Changes map[string]interface{} `json:"changes,omitempty"`
	Name    string                 `json:"name,omitempty"`
	Args    []interface{}          `json:"args,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// clientBuffer is the number of messages queued for a client before it
// is disconnected as too slow.
const clientBuffer = 256

type client struct {
	send chan []byte
	once sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.send) }) }

// Server serves the viewer's page, state and frames over HTTP.
type Server struct {
	Viewer *DatasetViewer
	Log    logrus.FieldLogger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
}

// NewServer returns a Server for v. It must not be called on v's loop.
func NewServer(v *DatasetViewer) *Server {
	s := &Server{
		Viewer:  v,
		Log:     v.Log,
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	v.loop.Sync(func() { v.State.Subscribe(s.broadcast) })
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Debug("viewer request")
	switch r.URL.Path {
	case "/":
		s.servePage(w, r)
	case "/ws":
		s.serveWebsocket(w, r)
	case "/frame.png":
		s.serveFrame(w, r)
	case "/config":
		s.serveConfig(w, r)
	default:
		http.NotFound(w, r)
	}
}

// broadcast sends a state patch to every client. It runs on the loop.
func (s *Server) broadcast(patch map[string]interface{}) {
	b, err := json.Marshal(message{Type: "state", Changes: patch})
	if err != nil {
		s.Log.WithError(err).Error("viewer: encoding state")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- b:
		default:
			s.Log.Warn("viewer: client is not keeping up; disconnecting")
			delete(s.clients, c)
			c.close()
		}
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.WithError(err).Warn("viewer: websocket upgrade")
		return
	}
	c := &client{send: make(chan []byte, clientBuffer)}
	v := s.Viewer

	// The snapshot is queued before any later patch.
	var snapErr error
	v.loop.Sync(func() {
		var b []byte
		b, snapErr = json.Marshal(message{Type: "state", Changes: v.State.Snapshot()})
		if snapErr != nil {
			return
		}
		c.send <- b
		s.mu.Lock()
		s.clients[c] = true
		s.mu.Unlock()
		v.ClientConnected()
	})
	if snapErr != nil {
		s.Log.WithError(snapErr).Error("viewer: encoding state")
		conn.Close()
		return
	}
	s.Log.WithField("remote", r.RemoteAddr).Info("client connected")

	go func() {
		for b := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				break
			}
		}
		conn.Close()
	}()

	defer func() {
		s.remove(c)
		s.Log.WithField("remote", r.RemoteAddr).Info("client disconnected")
	}()
	for {
		var m message
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Log.WithError(err).Warn("viewer: reading websocket")
			}
			return
		}
		switch m.Type {
		case "state":
			changes := m.Changes
			v.loop.Dispatch(func() { v.State.Update(changes) })
		case "trigger":
			name, args := m.Name, m.Args
			v.loop.Dispatch(func() {
				if err := v.Trigger(name, args); err != nil {
					s.sendError(c, err)
				}
			})
		default:
			s.sendError(c, &unknownMessageError{m.Type})
		}
	}
}

type unknownMessageError struct{ t string }

func (e *unknownMessageError) Error() string {
	return "viewer: unknown message type " + e.t
}

func (s *Server) sendError(c *client, err error) {
	b, _ := json.Marshal(message{Type: "error", Message: err.Error()})
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clients[c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (s *Server) serveFrame(w http.ResponseWriter, r *http.Request) {
	var (
		key string
		png []byte
		ok  bool
	)
	if key = r.FormValue("key"); key != "" {
		png, ok = s.Viewer.Frame(key)
	} else {
		key, png, ok = s.Viewer.LatestFrame()
	}
	if !ok {
		http.Error(w, "frame not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("ETag", `"`+key+`"`)
	if _, err := w.Write(png); err != nil {
		s.Log.WithError(err).Warn("viewer: writing frame")
	}
}

func (s *Server) serveConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}
	var (
		cfg *pan3d.Config
		err error
	)
	s.Viewer.loop.Sync(func() { cfg, err = s.Viewer.Builder.ExportConfig("") })
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	if err := e.Encode(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, struct{ Version string }{pan3d.Version}); err != nil {
		s.Log.WithError(err).Error("viewer: rendering page")
	}
}

var page = template.Must(template.New("page").Parse(pageHTML))
