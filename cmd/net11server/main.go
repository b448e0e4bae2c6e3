// Command net11server is an example server built on the reactor,
// httpcore, and websocket packages, expanding the teacher's main():
// a hello-world text route, a static file route, and a WebSocket echo
// route, mirroring original_source/examples/http_helloworld.cpp,
// http_fileserver.cpp, and tcp_echo.cpp in one process.
package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"net11/internal/httpcore"
	"net11/reactor"
	"net11/websocket"
)

func main() {
	addr := flag.String("addr", ":8080", "address to listen on")
	staticDir := flag.String("static-dir", "./public_html", "directory served under /static/")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	r := reactor.New(router(*staticDir, logger), logger)
	logger.Info("starting net11server", "addr", *addr, "static_dir", *staticDir)
	if err := r.ListenAndServe(*addr); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func router(staticDir string, logger *slog.Logger) func(*httpcore.Connection) httpcore.Action {
	wsHandler := websocket.Handler{
		MaxMessageBytes: 1 << 20,
		OnMessage: func(sess *websocket.Session, opcode byte, payload []byte) bool {
			logger.Debug("websocket message", "opcode", opcode, "bytes", len(payload))
			return sess.Send(opcode, payload) // echo
		},
		OnClose: func(sess *websocket.Session) {
			logger.Debug("websocket session closed")
		},
	}

	return func(c *httpcore.Connection) httpcore.Action {
		logger.Debug("request", "conn_id", c.ID, "method", c.Method(), "url", c.URL())

		switch {
		case c.URL() == "/" && c.Method() == "GET":
			return httpcore.Respond(httpcore.NewTextResponse(200, "Hello from net11server\n"))

		case c.HasHeader("upgrade") && strings.EqualFold(c.Header("upgrade"), "websocket"):
			if action := websocket.Upgrade(c, wsHandler); action.Response != nil {
				return action
			}
			return httpcore.Action{}

		case strings.HasPrefix(c.URL(), "/static/"):
			if r := httpcore.MatchFileResponse(c, "/static/", staticDir); r != nil {
				return httpcore.Respond(r)
			}
			return httpcore.Action{}

		default:
			return httpcore.Action{}
		}
	}
}
