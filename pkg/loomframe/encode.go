package loomframe

import "github.com/loom-rpc/loom/pkg/loombuf"

// transact runs fn and, if it returns an error partway through writing a
// multi-field frame, rolls the buffer back to its pre-call state. This is
// what makes a whole Append<Opcode> call atomic, not just its individual
// AppendByte/AppendUint32/AppendBytes steps.
func transact(w *loombuf.WriteBuffer, fn func() error) error {
	mark := w.Mark()
	if err := fn(); err != nil {
		w.Rollback(mark)
		return err
	}
	return nil
}

// encHeader appends the opcode byte all frames start with.
func encHeader(w *loombuf.WriteBuffer, op Opcode) error {
	return w.AppendByte(byte(op))
}

// encPayload appends a 32-bit big-endian length followed by payload, the
// shape shared by every opcode that carries a variable-length body.
func encPayload(w *loombuf.WriteBuffer, payload []byte) error {
	if err := w.AppendUint32(uint32(len(payload))); err != nil {
		return err
	}
	return w.AppendBytes(payload)
}

// AppendPing writes a PING frame: opcode + seq.
func AppendPing(w *loombuf.WriteBuffer, seq uint32) error {
	return transact(w, func() error {
		if err := encHeader(w, OpPing); err != nil {
			return err
		}
		return w.AppendUint32(seq)
	})
}

// AppendPong writes a PONG frame: opcode + seq.
func AppendPong(w *loombuf.WriteBuffer, seq uint32) error {
	return transact(w, func() error {
		if err := encHeader(w, OpPong); err != nil {
			return err
		}
		return w.AppendUint32(seq)
	})
}

// AppendRequest writes a REQUEST frame: opcode + seq + payload_len + payload.
func AppendRequest(w *loombuf.WriteBuffer, seq uint32, payload []byte) error {
	return transact(w, func() error {
		if err := encHeader(w, OpRequest); err != nil {
			return err
		}
		if err := w.AppendUint32(seq); err != nil {
			return err
		}
		return encPayload(w, payload)
	})
}

// AppendResponse writes a RESPONSE frame: opcode + seq + payload_len + payload.
func AppendResponse(w *loombuf.WriteBuffer, seq uint32, payload []byte) error {
	return transact(w, func() error {
		if err := encHeader(w, OpResponse); err != nil {
			return err
		}
		if err := w.AppendUint32(seq); err != nil {
			return err
		}
		return encPayload(w, payload)
	})
}

// AppendPush writes a PUSH frame: opcode + payload_len + payload.
func AppendPush(w *loombuf.WriteBuffer, payload []byte) error {
	return transact(w, func() error {
		if err := encHeader(w, OpPush); err != nil {
			return err
		}
		return encPayload(w, payload)
	})
}

// AppendError writes an ERROR frame: opcode + code + seq + payload_len + payload.
func AppendError(w *loombuf.WriteBuffer, code byte, seq uint32, payload []byte) error {
	return transact(w, func() error {
		if err := encHeader(w, OpError); err != nil {
			return err
		}
		if err := w.AppendByte(code); err != nil {
			return err
		}
		if err := w.AppendUint32(seq); err != nil {
			return err
		}
		return encPayload(w, payload)
	})
}

// AppendGoAway writes a GOAWAY frame: opcode + code + payload_len + reason.
func AppendGoAway(w *loombuf.WriteBuffer, code byte, reason []byte) error {
	return transact(w, func() error {
		if err := encHeader(w, OpGoAway); err != nil {
			return err
		}
		if err := w.AppendByte(code); err != nil {
			return err
		}
		return encPayload(w, reason)
	})
}

// AppendHello writes a HELLO frame: opcode + version + ping_interval +
// payload_len + payload, where payload is encodings joined by ",".
func AppendHello(w *loombuf.WriteBuffer, version uint8, pingInterval uint32, encodings [][]byte) error {
	return transact(w, func() error {
		if err := encHeader(w, OpHello); err != nil {
			return err
		}
		if err := w.AppendByte(version); err != nil {
			return err
		}
		if err := w.AppendUint32(pingInterval); err != nil {
			return err
		}
		return encPayload(w, joinEncodings(encodings))
	})
}

// AppendSelectEncoding writes a SELECT_ENCODING frame: opcode + payload_len
// + encoding.
func AppendSelectEncoding(w *loombuf.WriteBuffer, encoding []byte) error {
	return transact(w, func() error {
		if err := encHeader(w, OpSelectEncoding); err != nil {
			return err
		}
		return encPayload(w, encoding)
	})
}

// joinEncodings joins encoding names with a single comma byte, matching
// the wire format HELLO expects. An empty list yields an empty payload.
func joinEncodings(encodings [][]byte) []byte {
	if len(encodings) == 0 {
		return nil
	}
	total := len(encodings) - 1 // commas
	for _, e := range encodings {
		total += len(e)
	}
	out := make([]byte, 0, total)
	for i, e := range encodings {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, e...)
	}
	return out
}
