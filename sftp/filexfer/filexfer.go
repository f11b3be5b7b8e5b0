// Package filexfer implements the wire encoding of SFTP v3
// (draft-ietf-secsh-filexfer-02) packets: one Go type per packet, each
// able to marshal itself to and from a Buffer.
package filexfer

// ComposePacket concatenates the header/payload pair returned by a
// MarshalPacket method into the single byte slice MarshalBinary needs.
func ComposePacket(header, payload []byte, err error) ([]byte, error) {
	return append(header, payload...), err
}
