package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/dispatcher"
	"github.com/dermesser/zbroker/handlers"
	"github.com/dermesser/zbroker/log"
	smgr "github.com/dermesser/zbroker/securitymanager"
	"github.com/dermesser/zbroker/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) uint {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return uint(l.Addr().(*net.TCPAddr).Port)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.Workers = 2
	cfg.Retries = 3
	cfg.Timeout = 300 * time.Millisecond
	return cfg
}

func testCipher(t *testing.T) smgr.Cipher {
	key, err := smgr.GenerateKey(smgr.DEFAULT_KEY_SIZE)
	require.NoError(t, err)
	cipher, err := smgr.NewAESCipher(key)
	require.NoError(t, err)
	return cipher
}

// Creates and starts a server. Safe to call from any goroutine; the caller
// closes the server.
func newServer(cfg *config.Config, cipher smgr.Cipher) (*server.Server, error) {
	d := dispatcher.New(cfg, log.Discard())
	if err := handlers.Register(d); err != nil {
		return nil, err
	}

	srv, err := server.NewServer(cfg, cipher, d, log.Discard())
	if err != nil {
		return nil, err
	}

	go srv.Serve(context.Background())
	return srv, nil
}

func startServer(t *testing.T, cfg *config.Config, cipher smgr.Cipher) *server.Server {
	t.Helper()

	srv, err := newServer(cfg, cipher)
	require.NoError(t, err)

	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestPeerAddress(t *testing.T) {
	p := Peer("127.0.0.1", 5555)
	assert.Equal(t, "tcp://127.0.0.1:5555", p.ToUrl())
	assert.Equal(t, "127.0.0.1:5555", p.String())

	p = IPCPeer("/tmp/zbroker.sock")
	assert.Equal(t, "ipc:///tmp/zbroker.sock", p.ToUrl())

	p, err := ParsePeer("tcp://localhost:1234")
	require.NoError(t, err)
	assert.Equal(t, Peer("localhost", 1234), p)

	p, err = ParsePeer("tcp://[::1]:1234")
	require.NoError(t, err)
	assert.Equal(t, "tcp://[::1]:1234", p.ToUrl())

	p, err = ParsePeer("ipc://broker")
	require.NoError(t, err)
	assert.Equal(t, IPCPeer("broker"), p)

	for _, bad := range []string{"tcp://localhost", "tcp://:1", "tcp://host:0", "tcp://host:x", "tcp://host:70000"} {
		_, err = ParsePeer(bad)
		assert.Error(t, err, bad)
	}
}

func TestParams(t *testing.T) {
	p := NewParams().Retries(0).Timeout(time.Second)
	assert.EqualValues(t, 1, p.GetRetries())
	assert.Equal(t, time.Second, p.GetTimeout())

	// Defaults match the configuration defaults
	cfg := config.Default()
	assert.Equal(t, cfg.Timeout, NewParams().GetTimeout())
	assert.Equal(t, cfg.Retries, NewParams().GetRetries())

	p = ParamsFromConfig(cfg)
	assert.Equal(t, cfg.Retries, p.GetRetries())
	assert.Equal(t, cfg.Timeout, p.GetTimeout())
}

func TestEncodeRequest(t *testing.T) {
	cipher := testCipher(t)

	encrypted, err := encodeRequest(cipher, "getdata_1", map[string]interface{}{"user": "alice", "command": "other"})
	require.NoError(t, err)

	plaintext, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)

	var rq map[string]interface{}
	require.NoError(t, json.Unmarshal(plaintext, &rq))
	assert.Equal(t, map[string]interface{}{"command": "getdata_1", "user": "alice"}, rq)

	_, err = encodeRequest(cipher, "x", map[string]interface{}{"bad": make(chan int)})
	var rqerr *RequestError
	require.ErrorAs(t, err, &rqerr)
	assert.Equal(t, STATUS_CLIENT_REQUEST_ERROR, rqerr.Status())
}

func TestDecodeReply(t *testing.T) {
	cipher := testCipher(t)

	encrypted, err := cipher.Encrypt([]byte(`{"status":"ok"}`))
	require.NoError(t, err)
	reply, err := decodeReply(cipher, encrypted)
	require.NoError(t, err)
	assert.Equal(t, dispatcher.Reply{"status": "ok"}, reply)

	// Plaintext error replies of workers that couldn't decrypt the request
	reply, err = decodeReply(cipher, []byte(`{"error":"unsupported encryption method"}`))
	require.NoError(t, err)
	assert.True(t, reply.IsError())

	_, err = decodeReply(cipher, []byte("not json, not encrypted"))
	assert.ErrorIs(t, err, ErrBadReply)

	encrypted, err = cipher.Encrypt([]byte(`{"status":"ok","id":9007199254740993}`))
	require.NoError(t, err)
	reply, err = decodeReply(cipher, encrypted)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), reply["id"])

	encrypted, err = cipher.Encrypt([]byte(`[1, 2]`))
	require.NoError(t, err)
	_, err = decodeReply(cipher, encrypted)
	assert.ErrorIs(t, err, ErrBadReply)
}

func TestRequest(t *testing.T) {
	cfg := testConfig(t)
	cipher := testCipher(t)
	startServer(t, cfg, cipher)

	cl, err := NewClientFromConfig("test", cfg, cipher, log.Discard())
	require.NoError(t, err)
	defer cl.Close()

	for i := 0; i < 3; i++ {
		reply, err := cl.Request(handlers.GETDATA_1, map[string]interface{}{"user": "alice"})
		require.NoError(t, err)
		assert.Equal(t, "ok", reply["status"])
		assert.Equal(t, "alice", reply["user"])
	}

	reply, err := cl.Request("unknown", nil)
	require.NoError(t, err)
	assert.Equal(t, dispatcher.Reply{"error": dispatcher.ERR_INVALID_REQUEST}, reply)

	// The connection is reused
	assert.Equal(t, Stats{Attempts: 4, Connects: 1}, cl.Stats())
}

func TestRequestWrongKey(t *testing.T) {
	cfg := testConfig(t)
	server_cipher, err := smgr.NewXChaChaCipher(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	client_cipher, err := smgr.NewXChaChaCipher(bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)
	startServer(t, cfg, server_cipher)

	cl, err := NewClientFromConfig("", cfg, client_cipher, nil)
	require.NoError(t, err)
	defer cl.Close()

	reply, err := cl.Request(handlers.GETDATA_1, map[string]interface{}{"user": "alice"})
	require.NoError(t, err)
	assert.Equal(t, dispatcher.Reply{"error": "unsupported encryption method"}, reply)
}

func TestServerOffline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timeout = 100 * time.Millisecond

	cl, err := NewClientFromConfig("offline", cfg, testCipher(t), nil)
	require.NoError(t, err)
	defer cl.Close()

	start := time.Now()
	_, err = cl.Request(handlers.GETDATA_1, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerOffline)

	var rqerr *RequestError
	require.ErrorAs(t, err, &rqerr)
	assert.Equal(t, STATUS_SERVER_OFFLINE, rqerr.Status())

	assert.Equal(t, Stats{Attempts: uint64(cfg.Retries), Connects: uint64(cfg.Retries)}, cl.Stats())
	assert.GreaterOrEqual(t, elapsed, time.Duration(cfg.Retries)*cfg.Timeout)
}

func TestServerStartsLate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retries = 10
	cipher := testCipher(t)

	cl, err := NewClientFromConfig("late", cfg, cipher, nil)
	require.NoError(t, err)
	defer cl.Close()

	type started struct {
		srv *server.Server
		err error
	}
	startc := make(chan started, 1)

	go func() {
		time.Sleep(2 * cfg.Timeout)
		srv, err := newServer(cfg, cipher)
		startc <- started{srv, err}
	}()

	reply, err := cl.Request(handlers.GETDATA_2, map[string]interface{}{"user": "bob"})

	st := <-startc
	require.NoError(t, st.err)
	defer st.srv.Close()

	require.NoError(t, err)
	assert.Equal(t, "ok", reply["status"])
	assert.Greater(t, cl.Stats().Attempts, uint64(1))
}

func TestTimeoutClient(t *testing.T) {
	cfg := testConfig(t)
	cipher := testCipher(t)
	startServer(t, cfg, cipher)

	cl, err := NewTimeoutClientFromConfig("single", cfg, cipher, log.Discard())
	require.NoError(t, err)

	reply, err := cl.Request(handlers.GETDATA_2, map[string]interface{}{"user": "bob"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply["status"])
}

func TestTimeoutClientTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timeout = 100 * time.Millisecond

	cl, err := NewTimeoutClientFromConfig("", cfg, testCipher(t), nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = cl.Request(handlers.GETDATA_1, nil)

	assert.True(t, errors.Is(err, ErrTimeout))
	var rqerr *RequestError
	require.ErrorAs(t, err, &rqerr)
	assert.Equal(t, STATUS_TIMEOUT, rqerr.Status())
	assert.GreaterOrEqual(t, time.Since(start), cfg.Timeout)
}
