package client

import (
	"encoding/json"
	"fmt"

	"github.com/dermesser/zbroker/dispatcher"
	smgr "github.com/dermesser/zbroker/securitymanager"
)

// The wire contract shared by both client strategies.

// Build and encrypt a request. The command member always wins over a
// "command" key in params.
func encodeRequest(cipher smgr.Cipher, command string, params map[string]interface{}) ([]byte, error) {
	rq := make(map[string]interface{}, len(params)+1)

	for k, v := range params {
		rq[k] = v
	}
	rq["command"] = command

	serialized, err := json.Marshal(rq)

	if err != nil {
		return nil, &RequestError{status: STATUS_CLIENT_REQUEST_ERROR, err: err}
	}

	encrypted, err := cipher.Encrypt(serialized)

	if err != nil {
		return nil, &RequestError{status: STATUS_CLIENT_REQUEST_ERROR, err: err}
	}
	return encrypted, nil
}

/*
Decode a reply. Replies are normally encrypted; a worker that could not decrypt
our request answers in plaintext instead, so a plaintext JSON object is
accepted as well.
*/
func decodeReply(cipher smgr.Cipher, raw []byte) (dispatcher.Reply, error) {
	var reply dispatcher.Reply

	plaintext, err := cipher.Decrypt(raw)

	if err != nil {
		if dispatcher.DecodeJSON(raw, &reply) == nil && reply != nil {
			return reply, nil
		}
		return nil, &RequestError{status: STATUS_BAD_REPLY, err: fmt.Errorf("%w: %s", ErrBadReply, err.Error())}
	}

	if err = dispatcher.DecodeJSON(plaintext, &reply); err != nil || reply == nil {
		return nil, &RequestError{status: STATUS_BAD_REPLY, err: fmt.Errorf("%w: not a JSON object", ErrBadReply)}
	}
	return reply, nil
}
