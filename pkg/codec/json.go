// Package codec provides encoding and decoding functionality for different data formats.
package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// JSONCodec is a codec that uses JSON for marshaling and unmarshaling.
// It implements the router's Codec interface.
type JSONCodec[T any, U any] struct {
	// DisallowUnknownFields rejects request bodies with fields T does not declare.
	DisallowUnknownFields bool
}

// NewJSONCodec creates a new JSONCodec instance for the specified types.
// T represents the request type and U represents the response type.
func NewJSONCodec[T any, U any]() *JSONCodec[T, U] {
	return &JSONCodec[T, U]{}
}

// Decode decodes the request body into a value of type T.
// An empty body decodes to the zero value.
func (c *JSONCodec[T, U]) Decode(r *http.Request) (T, error) {
	var data T
	if r.Body == nil {
		return data, nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if c.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&data); err != nil && err != io.EOF {
		return data, fmt.Errorf("decode json body: %w", err)
	}
	return data, nil
}

// Encode marshals resp to JSON and writes it with the JSON content type.
func (c *JSONCodec[T, U]) Encode(w http.ResponseWriter, resp U) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	_, err = w.Write(body)
	return err
}
