package client

import (
	"fmt"
	"strings"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// A TCP/IP or IPC address of a broker.
type PeerAddress struct {
	host string
	port uint

	path string
}

// Construct a new peer address.
func Peer(host string, port uint) PeerAddress {
	return PeerAddress{host: host, port: port}
}

func IPCPeer(path string) PeerAddress {
	return PeerAddress{path: path}
}

// Parse "tcp://host:port" or "ipc://path".
func ParsePeer(url string) (PeerAddress, error) {
	if strings.HasPrefix(url, "ipc://") {
		return IPCPeer(strings.TrimPrefix(url, "ipc://")), nil
	}

	var port uint
	hostport := strings.TrimPrefix(url, "tcp://")
	i := strings.LastIndex(hostport, ":")

	if i <= 0 {
		return PeerAddress{}, fmt.Errorf("bad peer address %q", url)
	}
	if _, err := fmt.Sscanf(hostport[i+1:], "%d", &port); err != nil || port == 0 || port > 65535 {
		return PeerAddress{}, fmt.Errorf("bad port in peer address %q", url)
	}
	return Peer(hostport[:i], port), nil
}

func (pa *PeerAddress) ToUrl() string {
	if pa.host != "" {
		return fmt.Sprintf("tcp://%s:%d", pa.host, pa.port)
	} else if pa.path != "" {
		return fmt.Sprintf("ipc://%s", pa.path)
	} else {
		return ""
	}
}

func (pa PeerAddress) String() string {
	if pa.host != "" {
		return fmt.Sprintf("%s:%d", pa.host, pa.port)
	}
	return pa.path
}

/*
A single REQ connection to a broker. A channel carries one request at a time;
after a timeout it is unusable (the REQ socket still waits for the lost reply)
and has to be destroyed and replaced.
*/
type rpcChannel struct {
	channel *zmq.Socket
	peer    PeerAddress
}

// Create a REQ socket and connect it to peer. timeout applies to sending and,
// if recv_timeout is set, also to receiving.
func newChannel(peer PeerAddress, timeout time.Duration, recv_timeout bool) (*rpcChannel, error) {
	sock, err := zmq.NewSocket(zmq.REQ)

	if err != nil {
		return nil, err
	}

	// Pending messages are discarded on close; a retry sends a fresh copy.
	sock.SetLinger(0)
	sock.SetIpv6(true)
	sock.SetReconnectIvl(100 * time.Millisecond)
	sock.SetSndtimeo(timeout)

	if recv_timeout {
		sock.SetRcvtimeo(timeout)
	}

	if err = sock.Connect(peer.ToUrl()); err != nil {
		sock.Close()
		return nil, err
	}

	return &rpcChannel{channel: sock, peer: peer}, nil
}

func (c *rpcChannel) destroy() {
	c.channel.Close()
}

func (c *rpcChannel) sendMessage(request []byte) error {
	_, err := c.channel.SendBytes(request, 0)
	return err
}

func (c *rpcChannel) receiveMessage() ([]byte, error) {
	return c.channel.RecvBytes(0)
}

// Wait up to timeout for a reply to become readable.
func (c *rpcChannel) poll(timeout time.Duration) (bool, error) {
	poller := zmq.NewPoller()
	poller.Add(c.channel, zmq.POLLIN)

	polled, err := poller.Poll(timeout)

	if err != nil {
		return false, err
	}
	return len(polled) > 0, nil
}
