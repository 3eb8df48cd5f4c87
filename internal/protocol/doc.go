// Package protocol implements the TLV control packets used to register and
// unregister sources over UDP. Every packet starts with an 8-byte header
// [Type:1][Len:2][Seq:4][Flags:1] in network byte order; requests carry a
// timestamp and a source path, acks echo the request sequence with a status.
package protocol
