package handler

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/Suhaibinator/PathRouter/pkg/codec"
)

// ErrEncode is wrapped by Response.Write when the body cannot be encoded.
var ErrEncode = errors.New("cannot encode response body")

// ContentType is the media type written with a Response.
type ContentType string

const (
	TextHTML            ContentType = codec.ContentTypeHTML
	TextPlain           ContentType = codec.ContentTypePlain
	ApplicationJSON     ContentType = codec.ContentTypeJSON
	ApplicationProtobuf ContentType = codec.ContentTypeProtobuf
)

// Response is the uniform shape every route handler produces.
type Response struct {
	Status      int
	Body        any
	Headers     http.Header
	ContentType ContentType // takes precedence over a Content-Type in Headers
}

// Write encodes the body and writes headers, status and body to w.
// Nothing is written if the body cannot be encoded.
func (resp Response) Write(w http.ResponseWriter) error {
	contentType := string(resp.ContentType)
	if contentType == "" {
		contentType = resp.Headers.Get("Content-Type")
	}

	body, contentType, err := codec.EncodeBody(resp.Body, contentType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	h := w.Header()
	for key, values := range resp.Headers {
		h.Del(key)
		for _, v := range values {
			h.Add(key, v)
		}
	}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if len(body) == 0 {
		return nil
	}
	_, err = w.Write(body)
	return err
}

// ErrorBody renders message the way the default error handler does.
// The message is HTML-escaped.
func ErrorBody(message string) string {
	return "<h1>" + html.EscapeString(message) + "</h1>"
}

// DefaultErrorResponse is the response of the default error handler:
// status 500 with an HTML body of the form <h1>message</h1>.
func DefaultErrorResponse(message string) Response {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ErrorResponse is DefaultErrorResponse with a chosen status.
func ErrorResponse(status int, message string) Response {
	return Response{
		Status:      status,
		Body:        ErrorBody(message),
		ContentType: TextHTML,
	}
}
