// Package session holds the shared record of one desktop/phone session: the
// phase flags, the paired peer address, link-health counters and the bounded
// log and latency histories shown to the user.
package session
