package client

import (
	"fmt"
	"strings"

	"github.com/dermesser/zbroker/log"
)

type rpclog_type int

const (
	log_REQUEST rpclog_type = iota
	log_RESPONSE
	log_ERROR
)

func (t rpclog_type) String() string {
	switch t {
	case log_REQUEST:
		return "REQ"
	case log_RESPONSE:
		return "RSP"
	case log_ERROR:
		return "ERR"
	default:
		return ""
	}
}

func transformRuneToPrintable(r rune) rune {
	if r >= 32 && r < 127 {
		return r
	}
	return '.'
}

// Replies that couldn't be decoded are logged like this.
func logString(str []byte) string {
	const max = 64
	if len(str) > max {
		str = str[:max]
	}
	return strings.Map(transformRuneToPrintable, string(str))
}

func connIdString(name string, peer PeerAddress, token string, size int) string {
	return fmt.Sprintf("%s/%s->%s %d B:", name, token, peer.String(), size)
}

func rpclog(logger *log.Logger, ll log.Level, t rpclog_type, id string, what ...interface{}) {
	if logger.IsLoggingEnabled(ll) {
		logger.Log(ll, append([]interface{}{t.String(), id}, what...)...)
	}
}
