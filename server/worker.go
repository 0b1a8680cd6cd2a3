package server

import (
	"encoding/json"
	"fmt"
	"syscall"

	"github.com/dermesser/zbroker/dispatcher"
	"github.com/dermesser/zbroker/log"

	zmq "github.com/pebbe/zmq4"
)

const (
	ERR_UNSUPPORTED_ENCRYPTION = "unsupported encryption method"
	ERR_REPLY_NOT_SERIALIZABLE = "reply could not be serialized"
	ERR_REPLY_NOT_ENCRYPTABLE  = "reply could not be encrypted"
)

// Create the socket of worker n. The worker is started by acceptRequests().
func (srv *Server) thread(n uint) (*zmq.Socket, string, error) {
	// Yes, we're using a REQ socket for the worker
	// see http://zguide.zeromq.org/page:all#toc72
	sock, err := srv.zctx.NewSocket(zmq.REQ)

	if err != nil {
		srv.logger.Log(log.LOGLEVEL_ERRORS, "Worker", n, "could not create socket:", err.Error())
		return nil, "", err
	}

	worker_identity := fmt.Sprintf("worker-%d", n)
	err = sock.SetIdentity(worker_identity)

	if err == nil {
		sock.SetLinger(0)
		err = sock.Connect(srv.backend_url)
	}

	if err != nil {
		srv.logger.Log(log.LOGLEVEL_ERRORS, "Worker", n, "could not connect to backend router:", err.Error())
		sock.Close()
		return nil, "", err
	}

	return sock, worker_identity, nil
}

// The part of a REQ socket the worker loop uses.
type workerSocket interface {
	SendBytes(data []byte, flags zmq.Flag) (int, error)
	RecvBytes(flags zmq.Flag) ([]byte, error)
	Close() error
}

/*
The worker loop: one request at a time, blocking on receive without timeout.
Returns nil once the server's context is terminated. A reply that can't be
sent leaves the REQ socket unusable, so that ends the worker with an error.
*/
func (srv *Server) acceptRequests(sock workerSocket, worker_identity string) error {
	defer sock.Close()

	logger := srv.logger.With("worker", worker_identity)

	if _, err := sock.SendBytes(MAGIC_READY_STRING, 0); err != nil {
		return workerExit(logger, err)
	}
	logger.Log(log.LOGLEVEL_INFO, "Worker started")

	for {
		request, err := sock.RecvBytes(0)

		if err != nil {
			if zmq.AsErrno(err) == zmq.Errno(syscall.EINTR) {
				// The REQ socket is still waiting for a request; just try again.
				logger.Log(log.LOGLEVEL_WARNINGS, "Skipped incoming message, error:", err.Error())
				continue
			}
			return workerExit(logger, err)
		}

		reply := srv.handleRequest(logger, request)

		if _, err = sock.SendBytes(reply, 0); err != nil {
			return workerExit(logger, err)
		}
	}
}

func workerExit(logger *log.Logger, err error) error {
	if zmq.AsErrno(err) == zmq.ETERM {
		logger.Log(log.LOGLEVEL_DEBUG, "Worker stopped")
		return nil
	}
	logger.Log(log.LOGLEVEL_ERRORS, "Worker failed:", err.Error())
	return err
}

/*
Handle one request: decrypt, dispatch, encrypt.

A request that can't be decrypted is answered in plaintext: the sender
evidently doesn't share our key, so it couldn't read an encrypted reply either.
*/
func (srv *Server) handleRequest(logger *log.Logger, request []byte) []byte {
	plaintext, err := srv.cipher.Decrypt(request)
	session_id := log.NewSessionID()

	if err != nil {
		logger.Logf(log.LOGLEVEL_WARNINGS, "Session ID: %s. Received a message with an unsupported encryption method (%d B): %s",
			session_id, len(request), err.Error())
		return plainErrorReply(ERR_UNSUPPORTED_ENCRYPTION)
	}

	logger.Logf(log.LOGLEVEL_INFO, "Received session ID: %s", session_id)

	reply := srv.dispatcher.Dispatch(plaintext, session_id)
	serialized, err := json.Marshal(reply)

	if err != nil {
		logger.Logf(log.LOGLEVEL_ERRORS, "Session ID: %s. Error when serializing reply: %s", session_id, err.Error())
		serialized, _ = json.Marshal(dispatcher.ErrorReply(ERR_REPLY_NOT_SERIALIZABLE))
	}

	encrypted, err := srv.cipher.Encrypt(serialized)

	if err != nil {
		logger.Logf(log.LOGLEVEL_ERRORS, "Session ID: %s. Error when encrypting reply: %s", session_id, err.Error())
		return plainErrorReply(ERR_REPLY_NOT_ENCRYPTABLE)
	}
	return encrypted
}

func plainErrorReply(msg string) []byte {
	reply, _ := json.Marshal(dispatcher.ErrorReply(msg))
	return reply
}
