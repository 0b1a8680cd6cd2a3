package client

import (
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
Single-shot client: every request opens a socket with a receive timeout, sends
once and waits for at most the timeout. There is no retry; a missing reply is
reported as ErrTimeout.
*/
type TimeoutClient struct {
	name    string
	peer    PeerAddress
	cipher  smgr.Cipher
	timeout time.Duration
	logger  *log.Logger
}

func NewTimeoutClient(name string, peer PeerAddress, cipher smgr.Cipher, timeout time.Duration, logger *log.Logger) *TimeoutClient {
	if name == "" {
		name = "client-" + uuid.NewString()[:8]
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &TimeoutClient{name: name, peer: peer, cipher: cipher, timeout: timeout, logger: logger.With("client", name)}
}

func NewTimeoutClientFromConfig(name string, cfg *config.Config, cipher smgr.Cipher, logger *log.Logger) (*TimeoutClient, error) {
	peer, err := ParsePeer(cfg.ConnectURL())

	if err != nil {
		return nil, err
	}
	return NewTimeoutClient(name, peer, cipher, cfg.Timeout, logger), nil
}

// Same contract as Client.Request, except that a missing reply results in a
// *RequestError with STATUS_TIMEOUT matching ErrTimeout.
func (cl *TimeoutClient) Request(command string, params map[string]interface{}) (dispatcher.Reply, error) {
	request, err := encodeRequest(cl.cipher, command, params)

	if err != nil {
		return nil, err
	}

	id := connIdString(cl.name, cl.peer, log.GetLogToken(), len(request))
	channel, err := newChannel(cl.peer, cl.timeout, true)

	if err != nil {
		rpclog(cl.logger, log.LOGLEVEL_ERRORS, log_ERROR, id, "Could not connect:", err.Error())
		return nil, &RequestError{status: STATUS_CLIENT_NETWORK_ERROR, err: err}
	}
	defer channel.destroy()

	rpclog(cl.logger, log.LOGLEVEL_DEBUG, log_REQUEST, id, command)
	start := time.Now()

	if err = channel.sendMessage(request); err == nil {
		var raw []byte

		if raw, err = channel.receiveMessage(); err == nil {
			rpclog(cl.logger, log.LOGLEVEL_DEBUG, log_RESPONSE, id, len(raw), "B after", log.Millis(time.Since(start)))
			return decodeReply(cl.cipher, raw)
		}
	}

	if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
		rpclog(cl.logger, log.LOGLEVEL_WARNINGS, log_ERROR, id, "Timed out after", log.Millis(time.Since(start)))
		return nil, &RequestError{status: STATUS_TIMEOUT, err: ErrTimeout}
	}

	rpclog(cl.logger, log.LOGLEVEL_ERRORS, log_ERROR, id, "Network error:", err.Error())
	return nil, &RequestError{status: STATUS_CLIENT_NETWORK_ERROR, err: err}
}
