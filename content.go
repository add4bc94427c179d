package canopy

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"os"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
)

// ContentKind tags which of the four shapes a ResponseContent carries, per
// spec.md §6.
type ContentKind uint8

const (
	KindBytes ContentKind = iota
	KindStream
	KindFile
	KindStatusOnly
)

// ResponseContent is what a content callback, an incident handler, or the
// dispatcher's own defaults hand back to the external HTTP engine. When
// Status is zero it defaults to 200 for Bytes/Stream/File content and to
// the incident's DefaultStatus for incident-produced content.
type ResponseContent struct {
	Status      int
	Header      http.Header
	Kind        ContentKind
	Body        []byte
	Stream      io.Reader
	File        *os.File
	ContentType string

	// Hijacked marks that the content callback already took over the
	// connection itself (e.g. via internal/upgrade's WebSocket upgrade)
	// and wrote its own bytes; the pipeline emits nothing further.
	Hijacked bool

	// minifyTypes is the cascaded GroupAttributes.MinifyTypes in effect
	// for the response that produced this content, stamped on by the
	// pipeline so WriteResponseContent can decide whether to run it
	// through the server's minifier without threading GroupAttributes
	// through the public Process signature.
	minifyTypes *stringSet
}

// Bytes builds a ResponseContent serving b verbatim. Content-Length is
// always known for Bytes content and is set automatically by the pipeline.
func Bytes(status int, contentType string, b []byte) *ResponseContent {
	return &ResponseContent{
		Status:      status,
		Kind:        KindBytes,
		Body:        b,
		ContentType: contentType,
	}
}

// Stream builds a ResponseContent that copies r to the client. Content-
// Length is left unknown (chunked transfer) unless the caller sets it via
// Header.
func Stream(status int, contentType string, r io.Reader) *ResponseContent {
	return &ResponseContent{
		Status:      status,
		Kind:        KindStream,
		Stream:      r,
		ContentType: contentType,
	}
}

// File builds a ResponseContent serving an already-opened file handle.
// File I/O itself is outside this library's scope (spec.md §1); the
// caller is responsible for opening (and the pipeline for closing) f.
func File(status int, contentType string, f *os.File) *ResponseContent {
	return &ResponseContent{
		Status:      status,
		Kind:        KindFile,
		File:        f,
		ContentType: contentType,
	}
}

// Status builds a status-only ResponseContent with an empty, explicitly
// zero-length body.
func Status(code int) *ResponseContent {
	return &ResponseContent{Status: code, Kind: KindStatusOnly}
}

// JSON serializes v as application/json bytes.
func JSON(status int, v any) (*ResponseContent, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Bytes(status, "application/json; charset=utf-8", b), nil
}

// XML serializes v as application/xml bytes.
func XML(status int, v any) (*ResponseContent, error) {
	b, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Bytes(status, "application/xml; charset=utf-8", b), nil
}

// MsgPack serializes v as application/msgpack bytes.
func MsgPack(status int, v any) (*ResponseContent, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Bytes(status, "application/msgpack", b), nil
}

// Proto serializes m as application/protobuf bytes.
func Proto(status int, m proto.Message) (*ResponseContent, error) {
	b, err := proto.Marshal(m)
	if err != nil {
		return nil, err
	}
	return Bytes(status, "application/protobuf", b), nil
}
