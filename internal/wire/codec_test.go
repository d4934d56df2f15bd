package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	cases := []Message{
		Subscribe{TenantID: 1, Namespace: "ns", Topic: "t", FromSeqno: 5, SubID: 99, OriginStream: 3},
		Unsubscribe{TenantID: 1, SubID: 99, Reason: UnsubscribeBackOff},
		DeliverData{TenantID: 1, SubID: 99, Previous: 5, Current: 6, Payload: []byte("data")},
		DeliverGap{TenantID: 1, SubID: 99, Previous: 5, Current: 10, Gap: GapRetention},
		DeliverBatch{TenantID: 1, SubID: 99, Records: []DeliverData{
			{TenantID: 1, SubID: 99, Previous: 1, Current: 2, Payload: []byte("a")},
			{TenantID: 1, SubID: 99, Previous: 2, Current: 3, Payload: []byte("b")},
		}},
		Goodbye{TenantID: 1, Reason: GoodbyeSocketError},
		Heartbeat{TenantID: 1, HealthyIDs: []uint64{1, 2, 3}},
		Publish{TenantID: 1, Namespace: "ns", Topic: "t", MsgID: [16]byte{1, 2, 3}, Payload: []byte("p")},
		DataAck{TenantID: 1, MsgID: [16]byte{4, 5, 6}, Seqno: 7, Status: 0},
		FindTailSeqno{TenantID: 1, Namespace: "ns", Topic: "t"},
		TailSeqno{TenantID: 1, Seqno: 42},
		Ping{TenantID: 1, Nonce: 7},
	}

	for _, want := range cases {
		encoded := Encode(want)
		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode %T: %v", want, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip %T mismatch:\ngot:  %#v\nwant: %#v", want, got, want)
		}
	}
}

func TestDecodeUnknownKindClosesStream(t *testing.T) {
	payload := []byte{0xFF, 0, 1}
	if _, err := Decode(payload); err != ErrUnknownKind {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestDecodeShortPayload(t *testing.T) {
	if _, err := Decode([]byte{byte(KindPing)}); err != ErrShortFrame {
		t.Fatalf("err = %v, want ErrShortFrame", err)
	}
}

func TestEncodeDecodeThroughFrame(t *testing.T) {
	msg := Publish{TenantID: 9, Namespace: "events", Topic: "orders", MsgID: [16]byte{9}, Payload: []byte("ord-1")}
	frame := EncodeFrame(17, Encode(msg))

	_, bodySize, err := DecodeHeader(frame[:HeaderSize])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	decodedFrame, err := DecodeBody(frame[HeaderSize : HeaderSize+int(bodySize)])
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decodedFrame.StreamID != 17 {
		t.Fatalf("StreamID = %d, want 17", decodedFrame.StreamID)
	}

	got, err := Decode(decodedFrame.Payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	gotPublish, ok := got.(Publish)
	if !ok {
		t.Fatalf("got %T, want Publish", got)
	}
	if gotPublish.Topic != "orders" || !bytes.Equal(gotPublish.Payload, []byte("ord-1")) {
		t.Fatalf("unexpected round trip: %#v", gotPublish)
	}
}
