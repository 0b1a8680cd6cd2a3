package dispatcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/log"
)

const (
	ERR_NOT_JSON        = "string could not be converted to json"
	ERR_INVALID_REQUEST = "invalid request"
	ERR_HANDLER_FAILED  = "internal error"
)

/*
A decoded request: a JSON object with at least a "command" member naming the
handler. All other members are handler-specific.
*/
type Request map[string]interface{}

// Returns the command name, or "" if there is none. Older clients send the
// name in a "request" member instead of "command".
func (rq Request) Command() string {
	if cmd, ok := rq["command"].(string); ok {
		return cmd
	}
	if cmd, ok := rq["request"].(string); ok {
		return cmd
	}
	return ""
}

// A reply; the presence of an "error" member marks a failure.
type Reply map[string]interface{}

func (rp Reply) IsError() bool {
	_, ok := rp["error"]
	return ok
}

func ErrorReply(msg string) Reply {
	return Reply{"error": msg}
}

/*
Type of a function that is called when the corresponding command is requested.
The configuration is shared and must be treated as read-only.
*/
type Handler func(rq Request, cfg *config.Config) Reply

/*
Maps command names to handlers. Lookup is total: a name without a handler is
answered with ERR_INVALID_REQUEST. Safe for concurrent use by several workers.
*/
type Dispatcher struct {
	lock     sync.RWMutex
	handlers map[string]Handler

	cfg    *config.Config
	logger *log.Logger
}

func New(cfg *config.Config, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Dispatcher{handlers: make(map[string]Handler), cfg: cfg, logger: logger}
}

/*
Add a new command. err is not nil if the command is already registered; the
existing handler is kept in that case.
*/
func (d *Dispatcher) RegisterHandler(command string, handler Handler) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if command == "" || handler == nil {
		return errors.New("Refusing to register empty command or nil handler")
	}
	if _, ok := d.handlers[command]; ok {
		d.logger.Log(log.LOGLEVEL_WARNINGS, "Trying to register existing command:", command)
		return fmt.Errorf("Command %s already registered; not overwritten", command)
	}

	d.logger.Log(log.LOGLEVEL_DEBUG, "Registered command:", command)
	d.handlers[command] = handler
	return nil
}

// Like RegisterHandler, but an existing handler for command is replaced.
func (d *Dispatcher) SetHandler(command string, handler Handler) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if command == "" || handler == nil {
		return errors.New("Refusing to register empty command or nil handler")
	}

	if _, ok := d.handlers[command]; ok {
		d.logger.Log(log.LOGLEVEL_DEBUG, "Replaced command:", command)
	} else {
		d.logger.Log(log.LOGLEVEL_DEBUG, "Registered command:", command)
	}
	d.handlers[command] = handler
	return nil
}

/*
Removes a command from the set of served commands.

Returns an error value with a description if the command doesn't exist.
*/
func (d *Dispatcher) UnregisterHandler(command string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if _, ok := d.handlers[command]; !ok {
		d.logger.Log(log.LOGLEVEL_WARNINGS, "Trying to unregister non-existing command:", command)
		return errors.New("No such command")
	}

	d.logger.Log(log.LOGLEVEL_DEBUG, "Unregistered command:", command)
	delete(d.handlers, command)
	return nil
}

// Names of all registered commands.
func (d *Dispatcher) Commands() []string {
	d.lock.RLock()
	defer d.lock.RUnlock()

	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Returns the handler for command; the default handler if there is none.
func (d *Dispatcher) findHandler(command string) Handler {
	d.lock.RLock()
	defer d.lock.RUnlock()

	if handler, ok := d.handlers[command]; ok {
		return handler
	}
	return invalidRequest
}

func invalidRequest(Request, *config.Config) Reply {
	return ErrorReply(ERR_INVALID_REQUEST)
}

/*
Decode raw (plaintext JSON), run the handler named by its command and return
the handler's reply unmodified. Never panics and never returns nil: malformed
input, unknown commands and failing handlers all turn into error replies.

The request and the reply are each logged exactly once under session_id.
*/
func (d *Dispatcher) Dispatch(raw []byte, session_id string) Reply {
	logger := d.logger.With("session", session_id)

	rq, err := parseRequest(raw)

	if err != nil {
		logger.Log(log.LOGLEVEL_DEBUG, "Could not parse request:", err.Error())

		reply := ErrorReply(ERR_NOT_JSON)
		d.logMessage(logger, log_RESPONSE, reply)
		return reply
	}

	d.logMessage(logger, log_REQUEST, rq)

	reply := d.invoke(logger, d.findHandler(rq.Command()), rq)

	d.logMessage(logger, log_RESPONSE, reply)
	return reply
}

func (d *Dispatcher) invoke(logger *log.Logger, handler Handler, rq Request) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log(log.LOGLEVEL_ERRORS, "Handler for", rq.Command(), "panicked:", r)
			reply = ErrorReply(ERR_HANDLER_FAILED)
		}
	}()

	reply = handler(rq, d.cfg)

	if reply == nil {
		reply = Reply{}
	}
	return reply
}

func parseRequest(raw []byte) (Request, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty request")
	}

	var rq Request

	if err := DecodeJSON(raw, &rq); err != nil {
		return nil, err
	}
	// "null" and "{}" decode without error, but don't carry anything
	if len(rq) == 0 {
		return nil, errors.New("empty request object")
	}
	return rq, nil
}

/*
Decode exactly one JSON value from raw into v. Numbers are kept as json.Number,
so integers beyond 2^53 survive a decode/encode round trip unchanged. Anything
but whitespace after the value is an error.
*/
func DecodeJSON(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data after JSON value")
	}
	return nil
}
