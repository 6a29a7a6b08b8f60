package handshake

import (
	"fmt"
	"io"

	"voynich/internal/wire"
)

// Run drives a machine over a byte stream until it is ready or fails. The
// caller is responsible for the handshake deadline: closing rw aborts the
// blocked read. When a received frame is rejected, a generic Error frame is
// sent before returning; the peer never learns which check failed.
func Run(rw io.ReadWriter, maxFrame uint32, m *Machine) (*Result, error) {
	fr := wire.NewReader(rw, maxFrame)
	fw := wire.NewWriter(rw, maxFrame)

	kx, err := m.Start()
	if err != nil {
		return nil, err
	}
	if err := send(fw, kx); err != nil {
		return nil, m.fail(err)
	}

	for m.State() != StateReady {
		payload, err := fr.ReadFrame()
		if err != nil {
			return nil, m.fail(fmt.Errorf("handshake: read: %w", err))
		}
		msg, err := wire.Unmarshal(payload)
		if err != nil {
			sendFailure(fw)
			return nil, m.fail(err)
		}
		replies, err := m.Handle(msg)
		if err != nil {
			sendFailure(fw)
			return nil, err
		}
		for _, reply := range replies {
			if err := send(fw, reply); err != nil {
				return nil, m.fail(err)
			}
		}
	}
	return m.Result()
}

func send(fw *wire.Writer, msg any) error {
	payload, err := wire.Marshal(msg)
	if err != nil {
		return err
	}
	return fw.WriteFrame(payload)
}

// sendFailure makes a best-effort attempt to tell the peer the handshake is
// over. The code and message are deliberately generic.
func sendFailure(fw *wire.Writer) {
	_ = send(fw, &wire.Error{Code: wire.ErrCodeProtocol, Message: "handshake failed"})
}
