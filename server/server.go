package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/dispatcher"
	"github.com/dermesser/zbroker/log"
	smgr "github.com/dermesser/zbroker/securitymanager"

	zmq "github.com/pebbe/zmq4"
	"golang.org/x/sync/errgroup"
)

/*
The broker and its pool of workers.

Clients connect to the frontend router; workers are goroutines whose REQ
sockets connect to the backend router. The load balancer in between only moves
frames around: it never decrypts or parses a message.
*/
type Server struct {
	// Private context, so the inproc backend and the shutdown via Term() don't
	// interfere with other servers in the same process.
	zctx *zmq.Context
	// Router receives new requests, the backend router distributes them between the workers
	frontend_router, backend_router *zmq.Socket
	frontend_url, backend_url       string
	workers                         uint

	cfg        *config.Config
	cipher     smgr.Cipher
	dispatcher *dispatcher.Dispatcher
	logger     *log.Logger

	// Respond "no" to health checks
	lameduck_state atomic.Bool

	serving    atomic.Bool
	stop_ctx   context.Context
	stop       context.CancelFunc
	done       chan struct{}
	close_once sync.Once
	close_err  error

	stats stats
}

// Counters maintained by the load balancer.
type Stats struct {
	// Requests handed to a worker
	Requests uint64
	// Replies routed back to a client
	Replies uint64
	// Replies that couldn't be routed (client gone)
	Unroutable uint64
	// Requests that had to wait for a worker
	Queued uint64
}

type stats struct {
	requests, replies, unroutable, queued atomic.Uint64
}

/*
Create a server bound to cfg.BindURL() (clients) and cfg.WorkerEndpoint
(workers). The sockets are bound immediately, so address problems are reported
here; no request is served before Serve() is called.

cipher is used by the workers only. The built-in commands __ping and __health
are registered in d.
*/
func NewServer(cfg *config.Config, cipher smgr.Cipher, d *dispatcher.Dispatcher, logger *log.Logger) (*Server, error) {
	if cfg == nil || cipher == nil || d == nil {
		return nil, errors.New("config, cipher and dispatcher are required")
	}
	if logger == nil {
		logger = log.Discard()
	}

	srv := &Server{
		frontend_url: cfg.BindURL(),
		backend_url:  cfg.WorkerEndpoint,
		workers:      cfg.Workers,
		cfg:          cfg,
		cipher:       cipher,
		dispatcher:   d,
		logger:       logger,
		done:         make(chan struct{}),
	}

	if srv.workers <= 0 {
		srv.workers = 1
	}
	srv.stop_ctx, srv.stop = context.WithCancel(context.Background())

	srv.registerAutoEndpoints()

	var err error
	srv.zctx, err = zmq.NewContext()

	if err != nil {
		logger.Log(log.LOGLEVEL_ERRORS, "Error when creating ZeroMQ context:", err.Error())
		return nil, err
	}

	srv.frontend_router, err = srv.newRouter(srv.frontend_url)

	if err != nil {
		srv.zctx.Term()
		return nil, err
	}

	srv.backend_router, err = srv.newRouter(srv.backend_url)

	if err != nil {
		srv.frontend_router.Close()
		srv.zctx.Term()
		return nil, err
	}

	logger.Log(log.LOGLEVEL_INFO, "Routing server bound to", srv.frontend_url, "workers at", srv.backend_url)
	return srv, nil
}

func (srv *Server) newRouter(url string) (*zmq.Socket, error) {
	sock, err := srv.zctx.NewSocket(zmq.ROUTER)

	if err != nil {
		srv.logger.Log(log.LOGLEVEL_ERRORS, "Error when creating Router socket:", err.Error())
		return nil, err
	}

	// Unroutable replies are reported instead of silently dropped
	sock.SetRouterMandatory(1)
	sock.SetLinger(0)

	srv.logger.Log(log.LOGLEVEL_DEBUG, "Binding router to", url)
	if err = sock.Bind(url); err != nil {
		srv.logger.Log(log.LOGLEVEL_ERRORS, "Error when binding Router socket to", url, ":", err.Error())
		sock.Close()
		return nil, err
	}
	return sock, nil
}

/*
Starts the workers and the load balancer and blocks until ctx is cancelled or
one of them fails. On return all sockets are closed and all worker goroutines
have exited. A Server can be served only once.
*/
func (srv *Server) Serve(ctx context.Context) error {
	if !srv.serving.CompareAndSwap(false, true) {
		return errors.New("Server already started")
	}
	defer close(srv.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(srv.stop_ctx, cancel)()

	g, gctx := errgroup.WithContext(ctx)

	var i uint
	for i = 0; i < srv.workers; i++ {
		sock, identity, err := srv.thread(i)

		if err != nil {
			// Already started workers exit once the context is terminated.
			srv.shutdown()
			g.Wait()
			return err
		}
		g.Go(func() error { return srv.acceptRequests(sock, identity) })
	}

	g.Go(func() error {
		defer srv.shutdown()
		return srv.loadbalance(gctx)
	})

	srv.logger.Log(log.LOGLEVEL_INFO, "Routing server started with", srv.workers, "workers")

	err := g.Wait()

	srv.logger.Log(log.LOGLEVEL_INFO, "Routing server stopped")
	return err
}

/*
Stops a running server and waits for Serve() to return, or releases the
sockets of a server that was never started. Safe to call more than once.
*/
func (srv *Server) Close() error {
	if srv.serving.CompareAndSwap(false, true) {
		// Never served; nobody else touches the sockets.
		srv.stop()
		close(srv.done)
		srv.shutdown()
		return srv.close_err
	}

	srv.stop()
	<-srv.done
	return srv.close_err
}

// Close the routers and terminate the context. Blocks until every worker has
// closed its socket.
func (srv *Server) shutdown() {
	srv.close_once.Do(func() {
		srv.frontend_router.Close()
		srv.backend_router.Close()
		srv.close_err = srv.zctx.Term()
	})
}

/*
A server that is in lameduck mode will respond negatively to health checks
but continue serving requests.
*/
func (srv *Server) SetLameduck(lameduck bool) {
	srv.lameduck_state.Store(lameduck)
}

// Address clients should connect to (the bind address).
func (srv *Server) Endpoint() string {
	return srv.frontend_url
}

func (srv *Server) Stats() Stats {
	return Stats{
		Requests:   srv.stats.requests.Load(),
		Replies:    srv.stats.replies.Load(),
		Unroutable: srv.stats.unroutable.Load(),
		Queued:     srv.stats.queued.Load(),
	}
}
