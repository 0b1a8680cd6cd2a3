package client

import (
	"time"

	"github.com/dermesser/zbroker/config"
)

// Various parameters determining how a request is executed. There are builder methods to set the various parameters.
type RequestParams struct {
	retries uint
	timeout time.Duration
}

func NewParams() *RequestParams {
	return &RequestParams{retries: 5, timeout: 2 * time.Second}
}

// Parameters from the Retries and Timeout settings.
func ParamsFromConfig(cfg *config.Config) *RequestParams {
	return NewParams().Retries(cfg.Retries).Timeout(cfg.Timeout)
}

// How many attempts a polling client makes before declaring the server offline. Values below 1 mean 1.
func (p *RequestParams) Retries(r uint) *RequestParams {
	if r < 1 {
		r = 1
	}
	p.retries = r
	return p
}

// How long to wait for each reply.
func (p *RequestParams) Timeout(d time.Duration) *RequestParams {
	p.timeout = d
	return p
}

func (p RequestParams) GetRetries() uint {
	return p.retries
}

func (p RequestParams) GetTimeout() time.Duration {
	return p.timeout
}
