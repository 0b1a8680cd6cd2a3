package server

import "fmt"

// Support types for dealing with ZeroMQ multi-frame messages.
// This is supposed to put an end to endless inconsistencies and bugs when dealing with the framing of
// messages in the broker.

/*
The routing envelope of a client message: every frame the frontend ROUTER
delivered before the body (the client identity, any identities added by
intermediate proxies, and the empty delimiter). It is stored while a worker
handles the request and sent back unchanged with the reply.
*/
type Envelope [][]byte

type clientMessage struct {
	envelope Envelope
	payload  []byte
}

// [identity..., "", payload] as received on the frontend.
func parseClientMessage(msg [][]byte) (clientMessage, error) {
	if len(msg) < 2 {
		return clientMessage{}, fmt.Errorf("client message has %d frames, need at least 2", len(msg))
	}

	return clientMessage{envelope: Envelope(msg[:len(msg)-1]), payload: msg[len(msg)-1]}, nil
}

func (msg clientMessage) serializeClientMessage() [][]byte {
	frames := make([][]byte, 0, len(msg.envelope)+1)
	frames = append(frames, msg.envelope...)
	return append(frames, msg.payload)
}

// Frames exchanged with the REQ sockets of the workers. The worker itself only
// ever sees the payload.
type backendMessage struct {
	workerId []byte
	payload  []byte
}

func newBackendMessage(workerId []byte, payload []byte) backendMessage {
	return backendMessage{workerId: workerId, payload: payload}
}

// [worker identity, "", payload]
func parseBackendMessage(msg [][]byte) (backendMessage, error) {
	if len(msg) != 3 {
		return backendMessage{}, fmt.Errorf("backend message has %d frames, need 3", len(msg))
	}
	if len(msg[1]) != 0 {
		return backendMessage{}, fmt.Errorf("backend message from %x lacks the empty delimiter", msg[0])
	}

	return backendMessage{workerId: msg[0], payload: msg[2]}, nil
}

func (msg backendMessage) serializeBackendMessage() [][]byte {
	return [][]byte{msg.workerId, {}, msg.payload}
}
