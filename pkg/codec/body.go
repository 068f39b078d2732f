package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Content types understood by EncodeBody.
const (
	ContentTypeHTML     = "text/html"
	ContentTypePlain    = "text/plain"
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
)

// EncodeBody serializes a response body. contentType may be empty, in which
// case it is inferred from the value. It returns the bytes and the content type
// to send, which is empty when nothing should be set.
//
// Strings and byte slices are written as-is, proto.Message values are
// marshaled as protobuf, and anything else is marshaled as JSON.
func EncodeBody(v any, contentType string) ([]byte, string, error) {
	switch body := v.(type) {
	case nil:
		return nil, contentType, nil
	case string:
		if contentType == "" {
			contentType = ContentTypePlain
		}
		return []byte(body), contentType, nil
	case []byte:
		return body, contentType, nil
	case proto.Message:
		if contentType != "" && !strings.HasPrefix(contentType, ContentTypeProtobuf) {
			if strings.HasPrefix(contentType, ContentTypeJSON) {
				out, err := protojson.Marshal(body)
				return out, contentType, err
			}
			return nil, "", fmt.Errorf("cannot encode %T as %s", v, contentType)
		}
		out, err := proto.Marshal(body)
		if err != nil {
			return nil, "", err
		}
		return out, ContentTypeProtobuf, nil
	default:
		if contentType == "" {
			contentType = ContentTypeJSON
		}
		if strings.HasPrefix(contentType, ContentTypeProtobuf) {
			return nil, "", fmt.Errorf("cannot encode %T as %s", v, contentType)
		}
		out, err := json.Marshal(body)
		if err != nil {
			return nil, "", err
		}
		return out, contentType, nil
	}
}
