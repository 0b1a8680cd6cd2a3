package dispatcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dermesser/zbroker/log"
)

type rpclog_type int

const (
	log_REQUEST rpclog_type = iota
	log_RESPONSE
)

func (t rpclog_type) String() string {
	switch t {
	case log_REQUEST:
		return "Received request"
	case log_RESPONSE:
		return "Sent reply"
	default:
		return ""
	}
}

// Shown in place of hidden values.
const HIDDEN_VALUE_PLACEHOLDER = "*******"

func transformRuneToPrintable(r rune) rune {
	if r >= 32 && r < 127 {
		return r
	}
	return '.'
}

func logString(str []byte) string {
	return strings.Map(transformRuneToPrintable, string(str))
}

// Returns a shallow copy of msg with the configured hidden keys masked. msg is
// left untouched: it is still going to be sent.
func (d *Dispatcher) redact(msg map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(msg))

	for k, v := range msg {
		out[k] = v
	}
	if d.cfg == nil {
		return out
	}
	for _, hidden := range d.cfg.HiddenKeys {
		if _, ok := out[hidden]; ok {
			out[hidden] = HIDDEN_VALUE_PLACEHOLDER
		}
	}
	return out
}

func (d *Dispatcher) formatMessage(msg map[string]interface{}) string {
	serialized, err := json.Marshal(d.redact(msg))

	if err != nil {
		return logString([]byte(fmt.Sprintf("%v", d.redact(msg))))
	}
	return logString(serialized)
}

// Error replies go to the error level, everything else to info.
func (d *Dispatcher) logMessage(logger *log.Logger, t rpclog_type, msg map[string]interface{}) {
	ll := log.LOGLEVEL_INFO

	if _, ok := msg["error"]; ok {
		ll = log.LOGLEVEL_ERRORS
	}

	if !logger.IsLoggingEnabled(ll) {
		return
	}
	logger.Logf(ll, "%s: %s", t.String(), d.formatMessage(msg))
}
