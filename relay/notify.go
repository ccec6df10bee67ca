package relay

import (
	"net"

	"github.com/opd-ai/mangeomic/protocol"
	"github.com/sirupsen/logrus"
)

// NotifyDisconnect sends a single BYE to the phone's streaming port.
//
// The notice is advisory: it is not acknowledged or retried, and every error
// is discarded. The phone also detects the loss through its own keep-alive
// timeout.
func NotifyDisconnect(ip string, port int) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "NotifyDisconnect",
		"peer":     ip,
		"port":     port,
	})

	addr, err := net.ResolveUDPAddr("udp", protocol.StreamAddr(ip, port))
	if err != nil {
		logger.WithError(err).Debug("Disconnect notice not sent")
		return
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		logger.WithError(err).Debug("Disconnect notice not sent")
		return
	}
	defer conn.Close()

	_, _ = conn.WriteTo(protocol.Bye, addr)
	logger.Debug("Disconnect notice sent")
}
