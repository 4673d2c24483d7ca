package marshal

import (
	"io"
	"net/http"
	"strings"

	"github.com/fitpulse/gateway/xhttp/header"
	"github.com/ugorji/go/codec"
)

// PrettyPrintSetting controls JSON indentation in responses
type PrettyPrintSetting int

const (
	// DontPrettyPrint emits compact JSON
	DontPrettyPrint PrettyPrintSetting = iota
	// PrettyPrint emits indented JSON
	PrettyPrint
)

var (
	plainHandle  = &codec.JsonHandle{}
	prettyHandle = &codec.JsonHandle{Indent: 2}
)

func encoderHandle(setting PrettyPrintSetting) codec.Handle {
	if setting == PrettyPrint {
		return prettyHandle
	}
	return plainHandle
}

// NewEncoder returns an encoder for the response, pretty-printing when
// the request looks like it comes from a human (browser Accept header,
// or an explicit ?pretty query parameter).
func NewEncoder(w io.Writer, r *http.Request) *codec.Encoder {
	setting := DontPrettyPrint
	if r != nil {
		if r.URL != nil && r.URL.Query().Get("pretty") != "" {
			setting = PrettyPrint
		} else if strings.Contains(r.Header.Get(header.Accept), "text/html") {
			setting = PrettyPrint
		}
	}
	return codec.NewEncoder(w, encoderHandle(setting))
}
