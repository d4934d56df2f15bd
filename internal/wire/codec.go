package wire

import (
	"encoding/binary"
	"errors"
)

// ErrUnknownKind is returned by Decode when the leading tag byte does not
// match any known Kind; per §4.10, an unknown type on decode closes the
// stream rather than being silently skipped.
var ErrUnknownKind = errors.New("wire: unknown message kind")

type encoder struct {
	buf []byte
}

func newEncoder() *encoder { return &encoder{buf: make([]byte, 0, 64)} }

func (e *encoder) byte(b byte)     { e.buf = append(e.buf, b) }
func (e *encoder) u16(v uint16)    { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); e.buf = append(e.buf, b[:]...) }
func (e *encoder) u64(v uint64)    { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); e.buf = append(e.buf, b[:]...) }
func (e *encoder) bytes16(v []byte) {
	e.u16(uint16(len(v)))
	e.buf = append(e.buf, v...)
}
func (e *encoder) str(s string) { e.bytes16([]byte(s)) }
func (e *encoder) raw(v []byte) { e.buf = append(e.buf, v...) }

type decoder struct {
	buf []byte
	off int
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) byte() (byte, error) {
	if d.off+1 > len(d.buf) {
		return 0, ErrShortFrame
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) u16() (uint16, error) {
	if d.off+2 > len(d.buf) {
		return 0, ErrShortFrame
	}
	v := binary.BigEndian.Uint16(d.buf[d.off : d.off+2])
	d.off += 2
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.off+8 > len(d.buf) {
		return 0, ErrShortFrame
	}
	v := binary.BigEndian.Uint64(d.buf[d.off : d.off+8])
	d.off += 8
	return v, nil
}

func (d *decoder) bytes16() ([]byte, error) {
	n, err := d.u16()
	if err != nil {
		return nil, err
	}
	if d.off+int(n) > len(d.buf) {
		return nil, ErrShortFrame
	}
	v := append([]byte(nil), d.buf[d.off:d.off+int(n)]...)
	d.off += int(n)
	return v, nil
}

func (d *decoder) str() (string, error) {
	b, err := d.bytes16()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) fixed16() ([16]byte, error) {
	var out [16]byte
	if d.off+16 > len(d.buf) {
		return out, ErrShortFrame
	}
	copy(out[:], d.buf[d.off:d.off+16])
	d.off += 16
	return out, nil
}

func (d *decoder) rest() []byte {
	b := append([]byte(nil), d.buf[d.off:]...)
	d.off = len(d.buf)
	return b
}

// Encode serializes msg to the tagged payload format: kind(u8) |
// tenant(u16 BE) | kind-specific fields. This payload is what gets carried
// as a Frame's Payload.
func Encode(msg Message) []byte {
	e := newEncoder()
	e.byte(byte(msg.Kind()))
	e.u16(uint16(msg.Tenant()))

	switch m := msg.(type) {
	case Subscribe:
		e.str(m.Namespace)
		e.str(m.Topic)
		e.u64(m.FromSeqno)
		e.u64(m.SubID)
		e.u64(m.OriginStream)
	case Unsubscribe:
		e.u64(m.SubID)
		e.byte(byte(m.Reason))
	case DeliverData:
		e.u64(m.SubID)
		e.u64(m.Previous)
		e.u64(m.Current)
		e.bytes16(m.Payload)
	case DeliverGap:
		e.u64(m.SubID)
		e.u64(m.Previous)
		e.u64(m.Current)
		e.byte(byte(m.Gap))
	case DeliverBatch:
		e.u64(m.SubID)
		e.u16(uint16(len(m.Records)))
		for _, r := range m.Records {
			e.u64(r.Previous)
			e.u64(r.Current)
			e.bytes16(r.Payload)
		}
	case Goodbye:
		e.byte(byte(m.Reason))
	case Heartbeat:
		e.u16(uint16(len(m.HealthyIDs)))
		for _, id := range m.HealthyIDs {
			e.u64(id)
		}
	case Publish:
		e.str(m.Namespace)
		e.str(m.Topic)
		e.raw(m.MsgID[:])
		e.bytes16(m.Payload)
	case DataAck:
		e.raw(m.MsgID[:])
		e.u64(m.Seqno)
		e.byte(m.Status)
	case FindTailSeqno:
		e.str(m.Namespace)
		e.str(m.Topic)
	case TailSeqno:
		e.u64(m.Seqno)
	case Ping:
		e.u64(m.Nonce)
	}
	return e.buf
}

// Decode parses a tagged payload produced by Encode back into a Message.
func Decode(payload []byte) (Message, error) {
	d := newDecoder(payload)
	kindByte, err := d.byte()
	if err != nil {
		return nil, err
	}
	tenantRaw, err := d.u16()
	if err != nil {
		return nil, err
	}
	tenant := TenantID(tenantRaw)

	switch Kind(kindByte) {
	case KindSubscribe:
		ns, err := d.str()
		if err != nil {
			return nil, err
		}
		topic, err := d.str()
		if err != nil {
			return nil, err
		}
		from, err := d.u64()
		if err != nil {
			return nil, err
		}
		sub, err := d.u64()
		if err != nil {
			return nil, err
		}
		origin, err := d.u64()
		if err != nil {
			return nil, err
		}
		return Subscribe{TenantID: tenant, Namespace: ns, Topic: topic, FromSeqno: from, SubID: sub, OriginStream: origin}, nil
	case KindUnsubscribe:
		sub, err := d.u64()
		if err != nil {
			return nil, err
		}
		reason, err := d.byte()
		if err != nil {
			return nil, err
		}
		return Unsubscribe{TenantID: tenant, SubID: sub, Reason: UnsubscribeReason(reason)}, nil
	case KindDeliverData:
		sub, err := d.u64()
		if err != nil {
			return nil, err
		}
		prev, err := d.u64()
		if err != nil {
			return nil, err
		}
		cur, err := d.u64()
		if err != nil {
			return nil, err
		}
		payload, err := d.bytes16()
		if err != nil {
			return nil, err
		}
		return DeliverData{TenantID: tenant, SubID: sub, Previous: prev, Current: cur, Payload: payload}, nil
	case KindDeliverGap:
		sub, err := d.u64()
		if err != nil {
			return nil, err
		}
		prev, err := d.u64()
		if err != nil {
			return nil, err
		}
		cur, err := d.u64()
		if err != nil {
			return nil, err
		}
		gap, err := d.byte()
		if err != nil {
			return nil, err
		}
		return DeliverGap{TenantID: tenant, SubID: sub, Previous: prev, Current: cur, Gap: GapKind(gap)}, nil
	case KindDeliverBatch:
		sub, err := d.u64()
		if err != nil {
			return nil, err
		}
		n, err := d.u16()
		if err != nil {
			return nil, err
		}
		recs := make([]DeliverData, 0, n)
		for i := 0; i < int(n); i++ {
			prev, err := d.u64()
			if err != nil {
				return nil, err
			}
			cur, err := d.u64()
			if err != nil {
				return nil, err
			}
			payload, err := d.bytes16()
			if err != nil {
				return nil, err
			}
			recs = append(recs, DeliverData{TenantID: tenant, SubID: sub, Previous: prev, Current: cur, Payload: payload})
		}
		return DeliverBatch{TenantID: tenant, SubID: sub, Records: recs}, nil
	case KindGoodbye:
		reason, err := d.byte()
		if err != nil {
			return nil, err
		}
		return Goodbye{TenantID: tenant, Reason: GoodbyeReason(reason)}, nil
	case KindHeartbeat:
		n, err := d.u16()
		if err != nil {
			return nil, err
		}
		ids := make([]uint64, 0, n)
		for i := 0; i < int(n); i++ {
			id, err := d.u64()
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return Heartbeat{TenantID: tenant, HealthyIDs: ids}, nil
	case KindPublish:
		ns, err := d.str()
		if err != nil {
			return nil, err
		}
		topic, err := d.str()
		if err != nil {
			return nil, err
		}
		msgID, err := d.fixed16()
		if err != nil {
			return nil, err
		}
		payload, err := d.bytes16()
		if err != nil {
			return nil, err
		}
		return Publish{TenantID: tenant, Namespace: ns, Topic: topic, MsgID: msgID, Payload: payload}, nil
	case KindDataAck:
		msgID, err := d.fixed16()
		if err != nil {
			return nil, err
		}
		seqno, err := d.u64()
		if err != nil {
			return nil, err
		}
		status, err := d.byte()
		if err != nil {
			return nil, err
		}
		return DataAck{TenantID: tenant, MsgID: msgID, Seqno: seqno, Status: status}, nil
	case KindFindTailSeqno:
		ns, err := d.str()
		if err != nil {
			return nil, err
		}
		topic, err := d.str()
		if err != nil {
			return nil, err
		}
		return FindTailSeqno{TenantID: tenant, Namespace: ns, Topic: topic}, nil
	case KindTailSeqno:
		seqno, err := d.u64()
		if err != nil {
			return nil, err
		}
		return TailSeqno{TenantID: tenant, Seqno: seqno}, nil
	case KindPing:
		nonce, err := d.u64()
		if err != nil {
			return nil, err
		}
		return Ping{TenantID: tenant, Nonce: nonce}, nil
	default:
		return nil, ErrUnknownKind
	}
}
