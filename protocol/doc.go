// Package protocol defines the datagram vocabulary spoken between the desktop
// peer and the mobile peer.
//
// The protocol runs over UDP on two fixed ports. Every control message is a
// fixed byte sentinel carried alone in one datagram; there is no framing or
// length prefix. Any datagram on the streaming port that is not a sentinel is
// raw audio and is forwarded as-is.
//
//	DISCOVER    MANGEO_DISCOVER  desktop -> broadcast  discovery port
//	HI          MANGEO_HI        phone   -> desktop    discovery port
//	OK          MANGEO_OK        desktop -> phone      discovery port
//	BYE         MANGEO_BYE       either  -> either     streaming port
//	HEARTBEAT   MANGOVAR         phone   -> desktop    streaming port
//	KEEP_ALIVE  MANGOHI          desktop -> phone      streaming port
//
// Peers are not authenticated: any host on the broadcast domain that sends
// the HI sentinel is accepted.
package protocol
