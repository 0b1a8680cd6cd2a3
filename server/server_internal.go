package server

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dermesser/zbroker/log"
	"github.com/dermesser/zbroker/server/queue"

	zmq "github.com/pebbe/zmq4"
)

/*
This file has the internal functions, the actual load balancer; server.go remains
uncluttered and with only public functions.
*/

// Sent by a worker once when it is ready for its first request.
var MAGIC_READY_STRING []byte = []byte("___ReAdY___")

// How often the balancer wakes up to check for cancellation when idle.
const POLL_INTERVAL = 100 * time.Millisecond

// Log a warning when this many requests per worker are waiting.
const QUEUED_REQUESTS_WARNING_PER_WORKER = 50

// State of the load balancer. Only touched by the balancer goroutine.
type balancer struct {
	// Identities of idle workers, least recently used first
	worker_queue queue.Queue[string]
	// Requests waiting for a worker. Unbounded: nothing is dropped.
	request_queue queue.Queue[clientMessage]
	// Envelope of the request each busy worker is handling
	in_flight map[string]Envelope
	warned    bool
}

/*
Load balancer using the least recently used worker: We have a queue of idle
worker identities; a worker is queued when it announces itself or sends a
reply, and dequeued when it is sent a client request.

Additionally, there's a request queue for the case that there are no workers
available at the moment. This queue is consulted every time a worker has
completed a request.
*/
func (srv *Server) loadbalance(ctx context.Context) error {
	lb := &balancer{
		worker_queue:  queue.NewQueue[string](int(srv.workers)),
		request_queue: queue.NewQueue[clientMessage](int(srv.workers) * 4),
		in_flight:     make(map[string]Envelope, srv.workers),
	}

	poller := zmq.NewPoller()
	poller.Add(srv.frontend_router, zmq.POLLIN)
	poller.Add(srv.backend_router, zmq.POLLIN)

	for {
		select {
		case <-ctx.Done():
			srv.logger.Log(log.LOGLEVEL_INFO, "Stopped balancer;", lb.request_queue.Len(), "queued and",
				len(lb.in_flight), "in-flight requests abandoned")
			return nil
		default:
		}

		polled, err := poller.Poll(POLL_INTERVAL)

		if err != nil {
			if zmq.AsErrno(err) == zmq.ETERM {
				return err
			}
			srv.logger.Log(log.LOGLEVEL_ERRORS, "Polling error in loadbalancer:", err.Error())
			continue
		}

		for _, sock := range polled {
			switch s := sock.Socket; s {
			case srv.frontend_router:
				srv.handleIncomingRequest(lb)
			case srv.backend_router:
				srv.handleWorkerMessage(lb)
			}
		}
	}
}

func (srv *Server) handleIncomingRequest(lb *balancer) {
	// [client identity, "", payload] for REQ clients; more identity frames behind proxies
	msgs, err := srv.frontend_router.RecvMessageBytes(0)

	if err != nil {
		srv.logger.Log(log.LOGLEVEL_ERRORS, "Error when receiving from frontend:", err.Error())
		return
	}

	message, err := parseClientMessage(msgs)

	if err != nil {
		srv.logger.Log(log.LOGLEVEL_WARNINGS, "Dropped message from frontend:", err.Error())
		return
	}

	if srv.logger.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		srv.logger.Log(log.LOGLEVEL_DEBUG, fmt.Sprintf("Request from %x, %d B", message.envelope[0], len(message.payload)))
	}

	if lb.worker_queue.Len() > 0 {
		srv.sendToWorker(lb, message)
		return
	}

	lb.request_queue.Push(message)
	srv.stats.queued.Add(1)

	limit := int(srv.workers) * QUEUED_REQUESTS_WARNING_PER_WORKER
	if lb.request_queue.Len() > limit && !lb.warned {
		srv.logger.Log(log.LOGLEVEL_WARNINGS, "More than", limit,
			"requests are waiting for a worker. Consider increasing # of workers")
		lb.warned = true
	}
}

// Hand message to the least recently used idle worker. If that worker can't
// be reached it is forgotten and the request goes back to the queue.
func (srv *Server) sendToWorker(lb *balancer, message clientMessage) {
	worker_id, _ := lb.worker_queue.Pop()

	_, err := srv.backend_router.SendMessage(newBackendMessage([]byte(worker_id), message.payload).serializeBackendMessage())

	if err != nil {
		if zmq.AsErrno(err) == zmq.EHOSTUNREACH {
			srv.logger.Log(log.LOGLEVEL_ERRORS, "Worker", worker_id, "is unreachable; dropping it from the pool")
		} else {
			srv.logger.Log(log.LOGLEVEL_ERRORS, "Error when sending to backend router:", err.Error())
		}
		lb.request_queue.Push(message)
		return
	}

	lb.in_flight[worker_id] = message.envelope
	srv.stats.requests.Add(1)
}

func (srv *Server) handleWorkerMessage(lb *balancer) {
	msgs, err := srv.backend_router.RecvMessageBytes(0) // [worker identity, "", payload]

	if err != nil {
		srv.logger.Log(log.LOGLEVEL_ERRORS, "Error when receiving from backend:", err.Error())
		return
	}

	message, err := parseBackendMessage(msgs)

	if err != nil {
		srv.logger.Log(log.LOGLEVEL_WARNINGS, "Dropped message from backend:", err.Error())
		return
	}

	worker_id := string(message.workerId)
	envelope, busy := lb.in_flight[worker_id]

	if !busy && bytes.Equal(message.payload, MAGIC_READY_STRING) {
		srv.logger.Log(log.LOGLEVEL_DEBUG, "Worker", worker_id, "is ready")
	} else if !busy {
		srv.logger.Log(log.LOGLEVEL_WARNINGS, "Dropped reply from worker", worker_id, "which has no request in flight")
	} else {
		delete(lb.in_flight, worker_id)
		srv.sendToClient(clientMessage{envelope: envelope, payload: message.payload})
	}

	// Any worker that talks to us is idle now (REQ sockets alternate strictly).
	lb.worker_queue.Remove(func(id string) bool { return id == worker_id })
	lb.worker_queue.Push(worker_id)

	// Now that we have a new free worker, let's see if there's work in the queue...
	for lb.request_queue.Len() > 0 && lb.worker_queue.Len() > 0 {
		request_message, _ := lb.request_queue.Pop()
		srv.sendToWorker(lb, request_message)
	}
	if lb.request_queue.Len() == 0 {
		lb.warned = false
	}
}

func (srv *Server) sendToClient(message clientMessage) {
	_, err := srv.frontend_router.SendMessage(message.serializeClientMessage())

	if err != nil {
		srv.stats.unroutable.Add(1)
		if zmq.AsErrno(err) == zmq.EHOSTUNREACH {
			// routing is mandatory.
			// Fails when the client has already disconnected (e.g. it gave up and reconnected)
			srv.logger.Log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("Could not route reply to client %x; it's gone", message.envelope[0]))
		} else {
			srv.logger.Log(log.LOGLEVEL_WARNINGS, "Error when sending to frontend router:", err.Error())
		}
		return
	}
	srv.stats.replies.Add(1)
}
