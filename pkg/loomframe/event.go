package loomframe

// Event is the decoded, in-memory representation of one frame, handed to
// the session layer by a Decoder (or, in practice, by loomstream.Handler).
// Only the fields relevant to Opcode are meaningful; payload-bearing
// fields always hold an owned copy, independent of the decode buffer that
// produced them.
type Event struct {
	Opcode Opcode

	Seq          uint32 // Request, Response, Ping, Pong, Error
	Code         byte   // GoAway, Error
	Version      uint8  // Hello
	PingInterval uint32 // Hello, in milliseconds

	Payload            []byte   // Request, Response, Push, Error
	Reason             []byte   // GoAway
	Encoding           []byte   // SelectEncoding
	SupportedEncodings [][]byte // Hello
}
