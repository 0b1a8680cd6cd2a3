// Package handlers contains the business commands served by the workers.
//
// The handlers here are placeholders for the real data sources: they validate
// their input and answer with canned data, which is enough to exercise the
// dispatch path end to end.
package handlers

import (
	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/dispatcher"
)

const (
	GETDATA_1 = "getdata_1"
	GETDATA_2 = "getdata_2"
)

// Register adds every business command to d.
func Register(d *dispatcher.Dispatcher) error {
	for name, h := range map[string]dispatcher.Handler{
		GETDATA_1: GetData1,
		GETDATA_2: GetData2,
	} {
		if err := d.RegisterHandler(name, h); err != nil {
			return err
		}
	}
	return nil
}

func user(rq dispatcher.Request) (string, bool) {
	u, ok := rq["user"].(string)
	return u, ok && u != ""
}

// Returns the list of records for the requesting user.
func GetData1(rq dispatcher.Request, cfg *config.Config) dispatcher.Reply {
	u, ok := user(rq)

	if !ok {
		return dispatcher.ErrorReply("missing user")
	}

	return dispatcher.Reply{
		"status": "ok",
		"user":   u,
		"data":   []interface{}{"record-1", "record-2", "record-3"},
	}
}

// Returns the summary for the requesting user.
func GetData2(rq dispatcher.Request, cfg *config.Config) dispatcher.Reply {
	u, ok := user(rq)

	if !ok {
		return dispatcher.ErrorReply("missing user")
	}

	return dispatcher.Reply{
		"status": "ok",
		"user":   u,
		"data": map[string]interface{}{
			"records": float64(3),
			"workers": float64(cfg.Workers),
		},
	}
}
