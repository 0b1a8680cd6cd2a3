package client

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/dispatcher"
	"github.com/dermesser/zbroker/log"
	smgr "github.com/dermesser/zbroker/securitymanager"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
)

/*
Synchronous client using the "lazy pirate" pattern: send, poll for a reply for
the configured timeout, and if nothing arrives, throw the socket away, open a
fresh one and send again. After the configured number of attempts the server is
considered offline.

A Client is safe for concurrent use, but requests are serialized.
*/
type Client struct {
	lock    sync.Mutex
	channel *rpcChannel

	name   string
	peer   PeerAddress
	cipher smgr.Cipher
	params RequestParams
	logger *log.Logger

	attempts, connects atomic.Uint64
}

// Lifetime counters of a client.
type Stats struct {
	// Requests sent, including resends
	Attempts uint64
	// Sockets opened
	Connects uint64
}

/*
Create a new client for the broker at peer. name is used for logging; an empty
name is replaced by a random one. params may be nil (defaults).

No connection is made before the first request.
*/
func NewClient(name string, peer PeerAddress, cipher smgr.Cipher, params *RequestParams, logger *log.Logger) *Client {
	if name == "" {
		name = "client-" + uuid.NewString()[:8]
	}
	if params == nil {
		params = NewParams()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{name: name, peer: peer, cipher: cipher, params: *params, logger: logger.With("client", name)}
}

// Client for the broker described by cfg.
func NewClientFromConfig(name string, cfg *config.Config, cipher smgr.Cipher, logger *log.Logger) (*Client, error) {
	peer, err := ParsePeer(cfg.ConnectURL())

	if err != nil {
		return nil, err
	}
	return NewClient(name, peer, cipher, ParamsFromConfig(cfg), logger), nil
}

func (cl *Client) Name() string {
	return cl.name
}

func (cl *Client) Stats() Stats {
	return Stats{Attempts: cl.attempts.Load(), Connects: cl.connects.Load()}
}

// Close the connection, if any. The client may still be used afterwards; it reconnects then.
func (cl *Client) Close() {
	cl.lock.Lock()
	defer cl.lock.Unlock()

	cl.disconnect()
}

func (cl *Client) disconnect() {
	if cl.channel != nil {
		cl.channel.destroy()
		cl.channel = nil
	}
}

func (cl *Client) connect() error {
	cl.disconnect()

	channel, err := newChannel(cl.peer, cl.params.timeout, false)

	if err != nil {
		return err
	}
	cl.connects.Add(1)
	cl.channel = channel
	return nil
}

/*
Send command with params to the broker and return its reply. A structured error
reply ({"error": ...}) is returned as a reply with a nil error.

When no reply arrived after all attempts, the error is a *RequestError with
status STATUS_SERVER_OFFLINE that matches ErrServerOffline.
*/
func (cl *Client) Request(command string, params map[string]interface{}) (dispatcher.Reply, error) {
	cl.lock.Lock()
	defer cl.lock.Unlock()

	request, err := encodeRequest(cl.cipher, command, params)

	if err != nil {
		return nil, err
	}

	token := log.GetLogToken()
	id := connIdString(cl.name, cl.peer, token, len(request))
	start := time.Now()

	for attempt := uint(1); attempt <= cl.params.retries; attempt++ {
		if cl.channel == nil {
			if err = cl.connect(); err != nil {
				rpclog(cl.logger, log.LOGLEVEL_ERRORS, log_ERROR, id, "Could not connect:", err.Error())
				return nil, &RequestError{status: STATUS_CLIENT_NETWORK_ERROR, err: err}
			}
		}

		cl.attempts.Add(1)
		rpclog(cl.logger, log.LOGLEVEL_DEBUG, log_REQUEST, id, command, "attempt", attempt)

		raw, err := cl.roundTrip(request)

		if err == nil {
			rpclog(cl.logger, log.LOGLEVEL_DEBUG, log_RESPONSE, id, len(raw), "B after", log.Millis(time.Since(start)))
			reply, err := decodeReply(cl.cipher, raw)

			if err != nil {
				rpclog(cl.logger, log.LOGLEVEL_WARNINGS, log_ERROR, id, "Undecodable reply:", logString(raw))
			}
			return reply, err
		}

		// The REQ socket is stuck waiting for the lost reply.
		cl.disconnect()

		if !errors.Is(err, ErrTimeout) {
			rpclog(cl.logger, log.LOGLEVEL_ERRORS, log_ERROR, id, "Network error:", err.Error())
			return nil, &RequestError{status: STATUS_CLIENT_NETWORK_ERROR, err: err}
		}

		if attempt < cl.params.retries {
			rpclog(cl.logger, log.LOGLEVEL_WARNINGS, log_ERROR, id, "No response from server, retrying...")
		}
	}

	rpclog(cl.logger, log.LOGLEVEL_ERRORS, log_ERROR, id, "Server seems to be offline, abandoning after", log.Millis(time.Since(start)))
	return nil, &RequestError{status: STATUS_SERVER_OFFLINE,
		err: fmt.Errorf("%w (%d attempts)", ErrServerOffline, cl.params.retries)}
}

// One attempt on the current channel. Returns ErrTimeout if the poll expired.
func (cl *Client) roundTrip(request []byte) ([]byte, error) {
	if err := cl.channel.sendMessage(request); err != nil {
		if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
			return nil, ErrTimeout
		}
		return nil, err
	}

	readable, err := cl.channel.poll(cl.params.timeout)

	if err != nil {
		return nil, err
	}
	if !readable {
		return nil, ErrTimeout
	}
	return cl.channel.receiveMessage()
}
