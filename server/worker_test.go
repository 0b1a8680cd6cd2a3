package server

import (
	"encoding/json"
	"errors"
	"syscall"
	"testing"

	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/dispatcher"
	"github.com/dermesser/zbroker/log"
	smgr "github.com/dermesser/zbroker/securitymanager"

	zmq "github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scripted stand-in for a worker's REQ socket.
type fakeSocket struct {
	requests [][]byte
	recv_err []error
	send_err map[int]error

	sent   [][]byte
	recvs  int
	closed bool
}

func (s *fakeSocket) SendBytes(data []byte, _ zmq.Flag) (int, error) {
	if err := s.send_err[len(s.sent)]; err != nil {
		return 0, err
	}
	s.sent = append(s.sent, data)
	return len(data), nil
}

func (s *fakeSocket) RecvBytes(zmq.Flag) ([]byte, error) {
	i := s.recvs
	s.recvs++
	if i < len(s.recv_err) && s.recv_err[i] != nil {
		return nil, s.recv_err[i]
	}
	if i < len(s.requests) {
		return s.requests[i], nil
	}
	return nil, zmq.ETERM
}

func (s *fakeSocket) Close() error {
	s.closed = true
	return nil
}

func newWorkerTestServer(t *testing.T) *Server {
	cfg := config.Default()
	cipher, err := smgr.NewXChaChaCipher(make([]byte, 32))
	require.NoError(t, err)

	d := dispatcher.New(cfg, nil)
	require.NoError(t, d.RegisterHandler("echo", echoHandler))
	return &Server{cfg: cfg, cipher: cipher, dispatcher: d, logger: log.Discard()}
}

func TestWorkerServesUntilTerm(t *testing.T) {
	srv := newWorkerTestServer(t)

	rq, err := srv.cipher.Encrypt([]byte(`{"command": "echo", "id": 7}`))
	require.NoError(t, err)
	sock := &fakeSocket{requests: [][]byte{rq, rq}}

	assert.NoError(t, srv.acceptRequests(sock, "worker-0"))
	assert.True(t, sock.closed)

	require.Len(t, sock.sent, 3)
	assert.Equal(t, MAGIC_READY_STRING, sock.sent[0])

	plaintext, err := srv.cipher.Decrypt(sock.sent[1])
	require.NoError(t, err)
	var reply dispatcher.Reply
	require.NoError(t, json.Unmarshal(plaintext, &reply))
	assert.Equal(t, dispatcher.Reply{"status": "ok", "id": float64(7)}, reply)
}

func TestWorkerStopsOnSendFailure(t *testing.T) {
	srv := newWorkerTestServer(t)

	rq, err := srv.cipher.Encrypt([]byte(`{"command": "echo"}`))
	require.NoError(t, err)
	send_err := errors.New("host unreachable")
	sock := &fakeSocket{requests: [][]byte{rq, rq, rq}, send_err: map[int]error{1: send_err}}

	assert.ErrorIs(t, srv.acceptRequests(sock, "worker-0"), send_err)
	// No further receive on a socket that still owes a reply
	assert.Equal(t, 1, sock.recvs)
	assert.True(t, sock.closed)
}

func TestWorkerRecvErrors(t *testing.T) {
	srv := newWorkerTestServer(t)

	// Interrupted receives are retried
	sock := &fakeSocket{recv_err: []error{zmq.Errno(syscall.EINTR)}}
	assert.NoError(t, srv.acceptRequests(sock, "worker-0"))
	assert.Equal(t, 2, sock.recvs)

	// Anything else ends the worker
	sock = &fakeSocket{recv_err: []error{zmq.EFSM, nil}}
	assert.Error(t, srv.acceptRequests(sock, "worker-1"))
	assert.Equal(t, 1, sock.recvs)
}

func TestWorkerReadyFailure(t *testing.T) {
	srv := newWorkerTestServer(t)

	sock := &fakeSocket{send_err: map[int]error{0: zmq.ETERM}}
	assert.NoError(t, srv.acceptRequests(sock, "worker-0"))
	assert.Zero(t, sock.recvs)
	assert.True(t, sock.closed)
}
