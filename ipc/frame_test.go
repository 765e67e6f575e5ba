package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/pithecene-io/playdl/types"
)

// encodeFrame encodes a payload with length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func TestEncodeFrame_RoundTripsRequest(t *testing.T) {
	frame, err := EncodeFrame(&Request{Type: TypeLogin, ID: "req-1"})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	decoder := NewFrameDecoder(bytes.NewReader(frame))
	payload, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	msg, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	req, ok := msg.(*Request)
	if !ok {
		t.Fatalf("DecodeFrame returned %T, want *Request", msg)
	}
	if req.Type != TypeLogin || req.ID != "req-1" {
		t.Errorf("request = %+v", req)
	}
}

func TestDecodeFrame_ResponseCarriesCredentialAndProfile(t *testing.T) {
	resp := &Response{
		Type:       TypeResponse,
		ID:         "req-2",
		OK:         true,
		Credential: &types.Credential{Email: "user@example.com", Token: "aas_et/secret"},
		Profile: []types.Property{
			{Key: "Client", Value: "android-google"},
			{Key: "Build.VERSION.SDK_INT", Value: "28"},
		},
	}
	frame, err := EncodeFrame(resp)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	msg, err := DecodeFrame(frame[LengthPrefixSize:])
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	got, ok := msg.(*Response)
	if !ok {
		t.Fatalf("DecodeFrame returned %T, want *Response", msg)
	}
	if got.Credential == nil || got.Credential.Token != "aas_et/secret" {
		t.Errorf("credential = %+v, token must survive the wire", got.Credential)
	}
	if len(got.Profile) != 2 || got.Profile[1].Key != "Build.VERSION.SDK_INT" {
		t.Errorf("profile order not preserved: %+v", got.Profile)
	}
}

func TestDecodeFrame_ErrorResponse(t *testing.T) {
	frame, _ := EncodeFrame(&Response{
		Type:  TypeResponse,
		ID:    "req-3",
		Error: &WireError{Kind: ErrorKindInteraction, Message: "closed", Code: 2},
	})

	msg, err := DecodeFrame(frame[LengthPrefixSize:])
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	got := msg.(*Response)
	if got.OK {
		t.Error("OK = true, want false")
	}
	if got.Error == nil || got.Error.Kind != ErrorKindInteraction || got.Error.Code != 2 {
		t.Errorf("Error = %+v", got.Error)
	}
}

func TestFrameDecoder_HelperStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)
	events := []any{
		&PageFinished{Type: TypePageFinished, URL: "https://accounts.example/a", Cookies: "NID=1"},
		&PageFinished{Type: TypePageFinished, URL: "https://accounts.example/b", Cookies: "oauth_token=tok", Identity: `"user@example.com"`},
		&HelperClosed{Type: TypeHelperClosed},
	}
	for _, ev := range events {
		if err := enc.WriteFrame(ev); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	decoder := NewFrameDecoder(&buf)
	var decoded []any
	for {
		payload, err := decoder.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		msg, err := DecodeFrame(payload)
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		decoded = append(decoded, msg)
	}

	if len(decoded) != 3 {
		t.Fatalf("decoded %d frames, want 3", len(decoded))
	}
	page, ok := decoded[1].(*PageFinished)
	if !ok {
		t.Fatalf("frame[1] = %T, want *PageFinished", decoded[1])
	}
	if page.Identity != `"user@example.com"` {
		t.Errorf("Identity = %q", page.Identity)
	}
	if _, ok := decoded[2].(*HelperClosed); !ok {
		t.Errorf("frame[2] = %T, want *HelperClosed", decoded[2])
	}
}

func TestFrameEncoder_ConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = enc.WriteFrame(&Request{Type: TypeGetProfile, ID: string(rune('a' + i))})
		}()
	}
	wg.Wait()

	decoder := NewFrameDecoder(&buf)
	count := 0
	for {
		payload, err := decoder.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed after %d frames: %v", count, err)
		}
		if _, err := DecodeFrame(payload); err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		count++
	}
	if count != 20 {
		t.Errorf("decoded %d frames, want 20", count)
	}
}

func TestDecodeFrame_UnknownType(t *testing.T) {
	frame, _ := EncodeFrame(map[string]any{"type": "artifact_chunk"})

	_, err := DecodeFrame(frame[LengthPrefixSize:])
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T (%v)", err, err)
	}
	if frameErr.Kind != FrameErrorUnknownType {
		t.Errorf("Kind = %v, want FrameErrorUnknownType", frameErr.Kind)
	}
	if frameErr.IsFatal() {
		t.Error("unknown types must not be fatal")
	}
}

func TestFrameDecoder_PartialFrame(t *testing.T) {
	frame, _ := EncodeFrame(&Request{Type: TypeRetrieveCredential, ID: "req-1"})

	// Keep only length prefix + half payload
	truncated := frame[:LengthPrefixSize+len(frame[LengthPrefixSize:])/2]

	decoder := NewFrameDecoder(bytes.NewReader(truncated))
	_, err := decoder.ReadFrame()
	if err == nil {
		t.Fatal("expected error for truncated frame")
	}
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
}

func TestFrameDecoder_OversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(MaxPayloadSize+1))

	decoder := NewFrameDecoder(&buf)
	_, err := decoder.ReadFrame()
	if err == nil {
		t.Fatal("expected error for oversized frame")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}
	if !frameErr.IsFatal() {
		t.Error("FrameErrorTooLarge.IsFatal() should return true")
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader(nil))
	_, err := decoder.ReadFrame()

	if err != io.EOF {
		t.Errorf("expected io.EOF, got: %v", err)
	}
}

func TestFrameDecoder_TruncatedLengthPrefix(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x00}))
	_, err := decoder.ReadFrame()

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}
}

// Decode errors are non-fatal: the frame boundary was intact.
func TestFrameDecoder_MalformedMsgpack(t *testing.T) {
	frame := encodeFrame([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	decoder := NewFrameDecoder(bytes.NewReader(frame))
	payload, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	_, err = DecodeFrame(payload)
	if err == nil {
		t.Fatal("expected decode error for malformed msgpack")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorDecode {
		t.Errorf("Kind = %v, want FrameErrorDecode", frameErr.Kind)
	}
	if IsFatalFrameError(err) {
		t.Error("decode errors should not be fatal")
	}
}

func TestFrameError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *FrameError
		contains string
	}{
		{
			name:     "partial without underlying error",
			err:      &FrameError{Kind: FrameErrorPartial, Msg: "truncated"},
			contains: "truncated",
		},
		{
			name:     "partial with underlying error",
			err:      &FrameError{Kind: FrameErrorPartial, Msg: "read failed", Err: io.ErrUnexpectedEOF},
			contains: "unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			if !bytes.Contains([]byte(msg), []byte(tt.contains)) {
				t.Errorf("error message %q does not contain %q", msg, tt.contains)
			}
		})
	}
}

func TestIsFatalFrameError_NonFrameError(t *testing.T) {
	if IsFatalFrameError(errors.New("regular error")) {
		t.Error("regular errors should not be fatal frame errors")
	}
	if IsFatalFrameError(nil) {
		t.Error("nil should not be a fatal frame error")
	}
	if IsFatalFrameError(io.EOF) {
		t.Error("io.EOF should not be a fatal frame error")
	}
}
