/*
Zbroker is an encrypted request/reply broker on top of ZeroMQ. Clients send
JSON commands, sealed with a pre-shared key, to a central broker; the broker
hands each request to the least recently used idle worker and routes the
worker's reply back to the client that sent it.

	client (REQ) --> [frontend ROUTER] broker [backend ROUTER] --> worker (REQ)
	                                                                 |
	                                                             dispatcher
	                                                                 |
	                                                              handler

The broker never looks into a payload. Workers decrypt, dispatch the command
to a registered handler (package dispatcher), and encrypt the reply. A request
that can't be decrypted is answered in plaintext with
{"error": "unsupported encryption method"}.

Packages:

	securitymanager  ciphers (AES-CBC, XChaCha20-Poly1305) and key files
	dispatcher       command registry, redacting request/reply log
	handlers         the business commands
	server           broker and worker pool
	client           polling (retrying) and single-shot clients
	config           ZBROKER_* settings
	log              leveled logger
	cmd/zbroker      command line: serve, request, keygen
*/
package zbroker
