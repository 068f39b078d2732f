package codec

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TestJSONCodec tests the JSONCodec
func TestJSONCodec(t *testing.T) {
	type TestRequest struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	type TestResponse struct {
		Greeting string `json:"greeting"`
	}

	codec := NewJSONCodec[TestRequest, TestResponse]()

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"name":"John","age":30}`))
	data, err := codec.Decode(req)
	if err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}
	if data.Name != "John" || data.Age != 30 {
		t.Errorf("Expected {John 30}, got %+v", data)
	}

	rr := httptest.NewRecorder()
	if err := codec.Encode(rr, TestResponse{Greeting: "Hello, John!"}); err != nil {
		t.Fatalf("Failed to encode response: %v", err)
	}
	if ct := rr.Header().Get("Content-Type"); ct != ContentTypeJSON {
		t.Errorf("Expected content type %q, got %q", ContentTypeJSON, ct)
	}
	if body := rr.Body.String(); body != `{"greeting":"Hello, John!"}` {
		t.Errorf("Unexpected body %q", body)
	}
}

func TestJSONCodecDecodeErrors(t *testing.T) {
	type strict struct {
		Name string `json:"name"`
	}

	codec := NewJSONCodec[strict, strict]()
	if _, err := codec.Decode(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))); err == nil {
		t.Errorf("Expected error for truncated JSON")
	}

	// An empty body is not an error.
	data, err := codec.Decode(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")))
	if err != nil || data.Name != "" {
		t.Errorf("Expected zero value for empty body, got %+v, %v", data, err)
	}

	codec.DisallowUnknownFields = true
	if _, err := codec.Decode(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"other":1}`))); err == nil {
		t.Errorf("Expected error for unknown field")
	}
}

func TestProtoCodec(t *testing.T) {
	codec := NewProtoCodec[*wrapperspb.StringValue, *wrapperspb.StringValue](func() *wrapperspb.StringValue {
		return &wrapperspb.StringValue{}
	})

	body, err := proto.Marshal(wrapperspb.String("bob"))
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	msg, err := codec.Decode(httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	if err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}
	if msg.GetValue() != "bob" {
		t.Errorf("Expected %q, got %q", "bob", msg.GetValue())
	}

	rr := httptest.NewRecorder()
	if err := codec.Encode(rr, wrapperspb.String("hello bob")); err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if ct := rr.Header().Get("Content-Type"); ct != ContentTypeProtobuf {
		t.Errorf("Expected content type %q, got %q", ContentTypeProtobuf, ct)
	}

	out := &wrapperspb.StringValue{}
	if err := proto.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if out.GetValue() != "hello bob" {
		t.Errorf("Expected %q, got %q", "hello bob", out.GetValue())
	}
}

func TestProtoCodecDecodeError(t *testing.T) {
	codec := NewProtoCodec[*wrapperspb.StringValue, *wrapperspb.StringValue](func() *wrapperspb.StringValue {
		return &wrapperspb.StringValue{}
	})

	// 0xff is an invalid tag.
	if _, err := codec.Decode(httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte{0xff}))); err == nil {
		t.Errorf("Expected decode error")
	}
}

func TestEncodeBody(t *testing.T) {
	tests := []struct {
		name        string
		body        any
		contentType string
		wantBody    string
		wantType    string
	}{
		{name: "nil", body: nil, wantBody: "", wantType: ""},
		{name: "string infers plain", body: "hi", wantBody: "hi", wantType: ContentTypePlain},
		{name: "string keeps html", body: "<h1>x</h1>", contentType: ContentTypeHTML, wantBody: "<h1>x</h1>", wantType: ContentTypeHTML},
		{name: "bytes pass through", body: []byte("raw"), wantBody: "raw", wantType: ""},
		{name: "map infers json", body: map[string]int{"a": 1}, wantBody: `{"a":1}`, wantType: ContentTypeJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct, err := EncodeBody(tt.body, tt.contentType)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if string(body) != tt.wantBody {
				t.Errorf("Expected body %q, got %q", tt.wantBody, string(body))
			}
			if ct != tt.wantType {
				t.Errorf("Expected content type %q, got %q", tt.wantType, ct)
			}
		})
	}
}

func TestEncodeBodyProto(t *testing.T) {
	body, ct, err := EncodeBody(wrapperspb.String("x"), "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ct != ContentTypeProtobuf {
		t.Errorf("Expected content type %q, got %q", ContentTypeProtobuf, ct)
	}
	out := &wrapperspb.StringValue{}
	if err := proto.Unmarshal(body, out); err != nil || out.GetValue() != "x" {
		t.Errorf("Expected round trip of %q, got %q (%v)", "x", out.GetValue(), err)
	}

	if _, _, err := EncodeBody(wrapperspb.String("x"), ContentTypeHTML); err == nil {
		t.Errorf("Expected error encoding proto as html")
	}
	if _, _, err := EncodeBody(map[string]int{}, ContentTypeProtobuf); err == nil {
		t.Errorf("Expected error encoding a map as protobuf")
	}
	if _, _, err := EncodeBody(make(chan int), ""); err == nil {
		t.Errorf("Expected error encoding a channel as json")
	}
}
