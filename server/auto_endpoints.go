package server

/*
* This file implements default commands: __health, which answers
* {"status": "ok"} unless the server is in lameduck mode, and __ping.
 */

import (
	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/dispatcher"
	"github.com/dermesser/zbroker/log"
)

const (
	HEALTH_COMMAND = "__health"
	PING_COMMAND   = "__ping"
)

// Binds the built-in commands to this server, replacing those of any earlier
// server that used the same dispatcher.
func (srv *Server) registerAutoEndpoints() {
	for name, h := range map[string]dispatcher.Handler{
		HEALTH_COMMAND: srv.makeHealthHandler(),
		PING_COMMAND:   pingHandler,
	} {
		if err := srv.dispatcher.SetHandler(name, h); err != nil {
			srv.logger.Log(log.LOGLEVEL_WARNINGS, "Built-in command not registered:", err.Error())
		}
	}
}

// Returns a handler function that returns OK iff the server is not in lameduck mode.
func (srv *Server) makeHealthHandler() dispatcher.Handler {
	return func(dispatcher.Request, *config.Config) dispatcher.Reply {
		if !srv.lameduck_state.Load() {
			return dispatcher.Reply{"status": "ok"}
		} else {
			return dispatcher.ErrorReply("lameduck")
		}
	}
}

func pingHandler(dispatcher.Request, *config.Config) dispatcher.Reply {
	return dispatcher.Reply{"status": "ok"}
}
