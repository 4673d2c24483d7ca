package httperror

import (
	"net/http"
	"strings"

	"github.com/fitpulse/gateway/xhttp/header"
	"github.com/ugorji/go/codec"
)

var (
	plainHandle  = &codec.JsonHandle{}
	prettyHandle = func() *codec.JsonHandle {
		h := &codec.JsonHandle{Indent: 2}
		return h
	}()
)

func encoderHandle(pretty bool) codec.Handle {
	if pretty {
		return prettyHandle
	}
	return plainHandle
}

// shouldPrettyPrint returns true when the caller is likely a human:
// browsers send Accept: text/html, curl users pass ?pretty
func shouldPrettyPrint(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.URL != nil && r.URL.Query().Get("pretty") != "" {
		return true
	}
	return strings.Contains(r.Header.Get(header.Accept), "text/html")
}
