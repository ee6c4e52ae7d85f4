package nhschooldata

import (
	"bytes"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"
)

const (
	acceptHeader = "text/csv, */*"
	userAgent    = "nhschooldata/" + Version
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// defaultTransport is shared by every RoundTripper without a Trans so
// idle connections are reused across requests.
var defaultTransport = nhTransport()

// nhTransport is equivalent to the http.DefaultTransport with the
// response header timeout bounded.  See
// https://golang.org/pkg/net/http/#RoundTripper.
func nhTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

// RoundTripper intercepts HTTP calls and alters the request and response
// as described below.  Trans is the underlying transport; a nil Trans
// uses a package level transport built by nhTransport.
type RoundTripper struct {
	Trans http.RoundTripper
}

// RoundTrip implements https://golang.org/pkg/net/http/#RoundTripper.
// The Department of Education exports are produced from spreadsheets and
// arrive either with a UTF-8 byte order mark or encoded as Windows-1252.
// The BOM breaks the first header column when read by encoding/csv, so
// it is stripped, and Windows-1252 bodies are decoded to UTF-8 so school
// names keep their accents.  The caller's request is not modified.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)

	resp, err := rt.transport().RoundTrip(req)
	if err != nil {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		log.Error("Body error: ", err)
		return resp, err
	}
	body = bytes.TrimPrefix(body, utf8BOM)
	if isWindows1252(resp.Header.Get("Content-Type")) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(body)
		if err != nil {
			return resp, err
		}
		body = decoded
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	if resp.Header != nil && resp.Header.Get("Content-Length") != "" {
		resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}

	return resp, nil
}

func isWindows1252(contentType string) bool {
	if contentType == "" {
		return false
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch strings.ToLower(params["charset"]) {
	case "windows-1252", "cp1252", "iso-8859-1", "latin1":
		return true
	}
	return false
}

// CloseIdleConnections closes idle connections held by the underlying
// transport.  http.Client.CloseIdleConnections calls it.
func (rt *RoundTripper) CloseIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}
	if ci, ok := rt.transport().(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

func (rt *RoundTripper) transport() http.RoundTripper {
	if rt.Trans == nil {
		return defaultTransport
	}
	return rt.Trans
}
