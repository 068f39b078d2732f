package codec

import (
	"fmt"
	"io"
	"net/http"

	"google.golang.org/protobuf/proto"
)

// ProtoCodec is a codec for Protocol Buffers messages.
// New allocates the request message Decode unmarshals into, because T is
// usually a pointer type whose zero value is nil.
type ProtoCodec[T proto.Message, U proto.Message] struct {
	New func() T
}

// NewProtoCodec creates a ProtoCodec. newReq must return a fresh, non-nil
// request message on every call.
func NewProtoCodec[T proto.Message, U proto.Message](newReq func() T) *ProtoCodec[T, U] {
	return &ProtoCodec[T, U]{New: newReq}
}

// Decode reads the request body and unmarshals it into a new T.
func (c *ProtoCodec[T, U]) Decode(r *http.Request) (T, error) {
	msg := c.New()
	if r.Body == nil {
		return msg, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return msg, err
	}
	if err := proto.Unmarshal(body, msg); err != nil {
		return msg, fmt.Errorf("decode protobuf body: %w", err)
	}
	return msg, nil
}

// Encode marshals resp and writes it with the protobuf content type.
func (c *ProtoCodec[T, U]) Encode(w http.ResponseWriter, resp U) error {
	body, err := proto.Marshal(resp)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", ContentTypeProtobuf)
	_, err = w.Write(body)
	return err
}
