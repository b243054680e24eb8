package analyzer

import (
	"bufio"
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"FlowChains/internal/core/model"
	contract "FlowChains/internal/model"
)

func init() {
	Register("http", func() contract.Analyzer { return HTTP{} })
}

// HTTP reads the head of an HTTP message from each flow's payload: a request
// for client to server flows and a response for server to client flows.
type HTTP struct{}

func (HTTP) Name() string { return "http" }

func (HTTP) Analyze(flow *model.FlowRecord) {
	if flow == nil || len(flow.Payload) == 0 {
		return
	}
	var msg *model.HTTPMessage
	if flow.Direction == model.CTS {
		msg = parseRequest(flow.Payload)
	} else {
		msg = parseResponse(flow.Payload)
	}
	if msg == nil {
		return
	}
	if flow.Protocol != model.TransportTCP {
		msg.Weird = strings.ToUpper(flow.Protocol) + "-HTTP"
	}
	flow.HTTP = msg
}

func parseRequest(payload []byte) *model.HTTPMessage {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return nil
	}
	return &model.HTTPMessage{
		Type:          model.HTTPRequest,
		Method:        req.Method,
		URI:           cleanURI(req.RequestURI),
		Host:          req.Host,
		Proto:         req.Proto,
		ContentLength: req.ContentLength,
		Headers:       flatten(req.Header),
	}
}

func parseResponse(payload []byte) *model.HTTPMessage {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(payload)), nil)
	if err != nil {
		return nil
	}
	return &model.HTTPMessage{
		Type:          model.HTTPResponse,
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Proto:         resp.Proto,
		ContentLength: resp.ContentLength,
		Headers:       flatten(resp.Header),
	}
}

// cleanURI unescapes uri, turning '+' into a space. Malformed escapes leave
// it as is.
func cleanURI(uri string) string {
	clean, err := url.QueryUnescape(uri)
	if err != nil {
		return uri
	}
	return clean
}

func flatten(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
