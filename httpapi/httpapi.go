// Package httpapi implements the HTTP service: static
// serving, JSON endpoints, and a WebSocket echo, wrapped around the
// fleet table's live snapshot.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go1090/modes"
)

// Version is reported in /data/receiver.json.
const Version = "go1090/1.0"

// FileSystem is a static-file capability interface: one implementation
// rooted at a web-root directory, another serving in-memory embedded
// blobs. The core picks one at startup and never mixes them.
type FileSystem interface {
	// Open returns the file's bytes, mtime, and whether it exists.
	Open(name string) (data []byte, modTime time.Time, ok bool)
}

// Server is the HTTP service's request handler.
type Server struct {
	Fleet      *modes.Fleet
	Files      FileSystem
	WebPage    string // default page name redirected to from "/"
	KeepAlive  bool   // server-side permission to honor client keep-alive
	Favicon    []byte
	FaviconICO []byte

	StatusCounts map[int]uint64
}

// NewServer builds a Server with the given collaborators.
func NewServer(fleet *modes.Fleet, files FileSystem, webPage string) *Server {
	return &Server{
		Fleet:        fleet,
		Files:        files,
		WebPage:      webPage,
		KeepAlive:    true,
		StatusCounts: make(map[int]uint64),
	}
}

// ServeHTTP dispatches every request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.reply(w, r, http.StatusBadRequest, "text/plain", []byte("bad method"))
		return
	}

	switch {
	case r.URL.Path == "/":
		http.Redirect(w, r, "/"+strings.TrimPrefix(s.WebPage, "/"), http.StatusMovedPermanently)
		s.count(http.StatusMovedPermanently)
		return

	case r.URL.Path == "/data/receiver.json":
		s.serveReceiverJSON(w, r)
		return

	case r.URL.Path == "/data.json" || r.URL.Path == "/data/aircraft.json" || r.URL.Path == "/chunks/chunks.json":
		s.serveAircraftJSON(w, r)
		return

	case r.URL.Path == "/echo":
		s.serveEcho(w, r)
		return

	case r.URL.Path == "/favicon.png":
		s.serveBlob(w, r, "image/png", s.Favicon)
		return

	case r.URL.Path == "/favicon.ico":
		s.serveBlob(w, r, "image/x-icon", s.FaviconICO)
		return

	case strings.Contains(path.Base(r.URL.Path), "."):
		s.serveStatic(w, r)
		return

	default:
		s.reply(w, r, http.StatusNotFound, "text/plain", []byte("Not found"))
	}
}

func (s *Server) count(status int) { s.StatusCounts[status]++ }

// reply writes a response honoring the keep-alive negotiation rule.
func (s *Server) reply(w http.ResponseWriter, r *http.Request, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if s.KeepAlive && wantsKeepAlive(r) {
		w.Header().Set("Connection", "keep-alive")
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
	s.count(status)
}

func wantsKeepAlive(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Connection"), "keep-alive")
}

func (s *Server) serveReceiverJSON(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(map[string]interface{}{
		"version": Version,
		"refresh": 1000,
		"history": 3,
		"lat":     s.Fleet.Home.Lat,
		"lon":     s.Fleet.Home.Lon,
	})
	if err != nil {
		log.Errorf("[HTTP] receiver.json marshal: %v", err)
		s.reply(w, r, http.StatusInternalServerError, "text/plain", []byte("error"))
		return
	}
	s.reply(w, r, http.StatusOK, "application/json", body)
}

type aircraftView struct {
	Hex       string  `json:"hex"`
	Flight    string  `json:"flight,omitempty"`
	Squawk    string  `json:"squawk,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	Altitude  int     `json:"altitude,omitempty"`
	Track     float64 `json:"track,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Messages  uint64  `json:"messages"`
	SeenFirst float64 `json:"seen_first"`
	SeenLast  float64 `json:"seen"`
}

func (s *Server) serveAircraftJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	now := time.Now()
	snap := s.Fleet.Snapshot()
	views := make([]aircraftView, 0, len(snap))
	for _, a := range snap {
		v := aircraftView{
			Hex:       fmt.Sprintf("%06x", a.Addr),
			Flight:    a.Callsign,
			Altitude:  a.Altitude,
			Track:     a.Heading,
			Speed:     a.GroundSpeed,
			Messages:  a.MessageCount,
			SeenFirst: now.Sub(a.FirstSeen).Seconds(),
			SeenLast:  now.Sub(a.LastSeen).Seconds(),
		}
		if a.Squawk != 0 {
			v.Squawk = fmt.Sprintf("%04d", a.Squawk)
		}
		if a.HasPosition {
			v.Lat, v.Lon = a.Position.Lat, a.Position.Lon
		}
		views = append(views, v)
	}

	body, err := json.Marshal(map[string]interface{}{
		"now":      now.Unix(),
		"messages": len(views),
		"aircraft": views,
	})
	if err != nil {
		log.Errorf("[HTTP] aircraft.json marshal: %v", err)
		s.reply(w, r, http.StatusInternalServerError, "text/plain", []byte("error"))
		return
	}
	s.reply(w, r, http.StatusOK, "application/json", body)
}

func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request, contentType string, blob []byte) {
	if blob == nil {
		s.reply(w, r, http.StatusNotFound, "text/plain", []byte("Not found"))
		return
	}
	s.reply(w, r, http.StatusOK, contentType, blob)
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if s.Files == nil {
		s.reply(w, r, http.StatusNotFound, "text/plain", []byte("Not found"))
		return
	}
	data, _, ok := s.Files.Open(strings.TrimPrefix(r.URL.Path, "/"))
	if !ok {
		s.reply(w, r, http.StatusNotFound, "text/plain", []byte("Not found"))
		return
	}
	s.reply(w, r, http.StatusOK, contentTypeFor(r.URL.Path), data)
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".js"):
		return "application/javascript"
	case strings.HasSuffix(name, ".css"):
		return "text/css"
	case strings.HasSuffix(name, ".html"):
		return "text/html"
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
