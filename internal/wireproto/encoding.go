package wireproto

import (
	"encoding/binary"
	"fmt"

	"github.com/eacopy/eacopy/internal/fingerprint"
)

// encBuf accumulates a message body using the protocol's fixed wire
// encodings: strings as a 2-byte big-endian length plus UTF-8 bytes,
// fingerprints as two 8-byte big-endian halves, sizes as 8-byte
// unsigned big-endian, times round-tripped as an opaque 8 bytes.
type encBuf struct {
	b []byte
}

func (e *encBuf) putString(s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	e.b = append(e.b, l[:]...)
	e.b = append(e.b, s...)
}

func (e *encBuf) putUint64(v uint64) {
	var x [8]byte
	binary.BigEndian.PutUint64(x[:], v)
	e.b = append(e.b, x[:]...)
}

func (e *encBuf) putUint32(v uint32) {
	var x [4]byte
	binary.BigEndian.PutUint32(x[:], v)
	e.b = append(e.b, x[:]...)
}

func (e *encBuf) putUint16(v uint16) {
	var x [2]byte
	binary.BigEndian.PutUint16(x[:], v)
	e.b = append(e.b, x[:]...)
}

func (e *encBuf) putByte(v byte) {
	e.b = append(e.b, v)
}

func (e *encBuf) putBool(v bool) {
	if v {
		e.putByte(1)
	} else {
		e.putByte(0)
	}
}

func (e *encBuf) putFingerprint(fp fingerprint.Fingerprint) {
	e.putUint64(fp.Hi)
	e.putUint64(fp.Lo)
}

func (e *encBuf) putTime(t [8]byte) {
	e.b = append(e.b, t[:]...)
}

func (e *encBuf) putBytes(p []byte) {
	e.putUint64(uint64(len(p)))
	e.b = append(e.b, p...)
}

// decBuf reads fields off a message body in the same order encBuf
// wrote them, failing closed (ErrShortMessage) on truncation rather
// than panicking on a malicious or corrupt peer.
type decBuf struct {
	b   []byte
	off int
}

// ErrShortMessage is returned by any decBuf getter when the message
// body is too short to contain the field being read.
var ErrShortMessage = fmt.Errorf("wireproto: message truncated")

func (d *decBuf) need(n int) error {
	if d.off+n > len(d.b) {
		return ErrShortMessage
	}
	return nil
}

func (d *decBuf) getString() (string, error) {
	if err := d.need(2); err != nil {
		return "", err
	}
	l := int(binary.BigEndian.Uint16(d.b[d.off : d.off+2]))
	d.off += 2
	if err := d.need(l); err != nil {
		return "", err
	}
	s := string(d.b[d.off : d.off+l])
	d.off += l
	return s, nil
}

func (d *decBuf) getUint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.b[d.off : d.off+8])
	d.off += 8
	return v, nil
}

func (d *decBuf) getUint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.b[d.off : d.off+4])
	d.off += 4
	return v, nil
}

func (d *decBuf) getUint16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.b[d.off : d.off+2])
	d.off += 2
	return v, nil
}

func (d *decBuf) getByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

func (d *decBuf) getBool() (bool, error) {
	v, err := d.getByte()
	return v != 0, err
}

func (d *decBuf) getFingerprint() (fingerprint.Fingerprint, error) {
	hi, err := d.getUint64()
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	lo, err := d.getUint64()
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	return fingerprint.Fingerprint{Hi: hi, Lo: lo}, nil
}

func (d *decBuf) getTime() ([8]byte, error) {
	var t [8]byte
	if err := d.need(8); err != nil {
		return t, err
	}
	copy(t[:], d.b[d.off:d.off+8])
	d.off += 8
	return t, nil
}

func (d *decBuf) getBytes() ([]byte, error) {
	l, err := d.getUint64()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(l)); err != nil {
		return nil, err
	}
	p := make([]byte, l)
	copy(p, d.b[d.off:d.off+int(l)])
	d.off += int(l)
	return p, nil
}
