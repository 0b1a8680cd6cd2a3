/*
Use either as

	$ echo -srv

or

	$ echo -cl

Both sides use the key in echo_key.txt, which is created if it doesn't exist.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dermesser/zbroker/client"
	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/dispatcher"
	"github.com/dermesser/zbroker/log"
	smgr "github.com/dermesser/zbroker/securitymanager"
	"github.com/dermesser/zbroker/server"
)

const keyFile = "echo_key.txt"

func echoHandler(rq dispatcher.Request, _ *config.Config) dispatcher.Reply {
	fmt.Println("Called echoHandler:", rq["text"])
	return dispatcher.Reply{"status": "ok", "text": rq["text"]}
}

func errorReturningHandler(dispatcher.Request, *config.Config) dispatcher.Reply {
	return dispatcher.ErrorReply("Some error occurred in handler, abort")
}

func loadCipher() (smgr.Cipher, error) {
	if _, err := os.Stat(keyFile); errors.Is(err, os.ErrNotExist) {
		key, err := smgr.GenerateKey(smgr.DEFAULT_KEY_SIZE)
		if err != nil {
			return nil, err
		}
		if err = smgr.WriteKey(keyFile, key); err != nil {
			return nil, err
		}
	}
	return smgr.LoadCipher(smgr.CIPHER_AES_CBC, keyFile)
}

func runServer(cfg *config.Config, cipher smgr.Cipher) error {
	logger := log.New(os.Stderr, "echo", log.LOGLEVEL_DEBUG)

	d := dispatcher.New(cfg, logger)
	d.RegisterHandler("echo", echoHandler)
	d.RegisterHandler("error", errorReturningHandler)

	srv, err := server.NewServer(cfg, cipher, d, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return srv.Serve(ctx)
}

func runClient(cfg *config.Config, cipher smgr.Cipher) error {
	cl, err := client.NewClientFromConfig("echo1_cl", cfg, cipher, log.New(os.Stderr, "echo", log.LOGLEVEL_WARNINGS))
	if err != nil {
		return err
	}
	defer cl.Close()

	for _, command := range []string{"echo", "error"} {
		reply, err := cl.Request(command, map[string]interface{}{"text": "helloworld"})
		if err != nil {
			return err
		}
		fmt.Println("Received reply:", reply)
	}
	return nil
}

func main() {
	var srv, cl bool
	flag.BoolVar(&srv, "srv", false, "Specify if you want us to run as server")
	flag.BoolVar(&cl, "cl", false, "Specify if you want us to run as client")

	flag.Parse()

	if srv == cl {
		fmt.Println("Wrong combination: Use either -srv or -cl")
		return
	}

	cfg := config.Default()
	cfg.Port = 9000
	cfg.Workers = 2
	cfg.Retries = 3
	cfg.Timeout = time.Second

	cipher, err := loadCipher()
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	if srv {
		err = runServer(cfg, cipher)
	} else {
		err = runClient(cfg, cipher)
	}

	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}
