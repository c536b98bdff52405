package fetchers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"marketplace-listing-api/internal/models"
)

const (
	DefaultTimeout = 30 * time.Second

	userAgent = "marketplace-listing-api/1.0"

	ctxStatus = "status"
	ctxBody   = "body"
)

// transport sends JSON requests to the backend through a colly collector.
// Non-2xx responses are delivered like any other so their envelope message
// can be read.
type transport struct {
	name      string
	collector *colly.Collector
}

func newTransport(name string, timeout time.Duration) *transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})

	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxStatus, r.StatusCode)
		r.Ctx.Put(ctxBody, r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		log.Printf("%s request error: %v", name, err)
	})

	return &transport{name: name, collector: c}
}

// do performs one request and returns the status and body. If ctx ends first
// the result is abandoned; the request itself is bounded by the collector's
// timeout.
func (t *transport) do(ctx context.Context, method, url, token string, payload any) (int, []byte, error) {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
		hdr.Set("Content-Type", "application/json")
	}

	reqCtx := colly.NewContext()
	done := make(chan error, 1)
	go func() {
		done <- t.collector.Request(method, url, body, reqCtx, hdr)
	}()

	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return 0, nil, err
		}
	}

	status, _ := reqCtx.GetAny(ctxStatus).(int)
	respBody, _ := reqCtx.GetAny(ctxBody).([]byte)
	if status == 0 {
		return 0, nil, errors.New("no response received")
	}
	return status, respBody, nil
}

func isSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}

// envelopeMessage extracts "message" from an error body, if there is one.
func envelopeMessage(body []byte) string {
	var env models.MutationEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}
