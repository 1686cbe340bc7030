// Package protocol implements the streaming channel wire format.
// It frames events as {"event", "data"} envelopes in JSON text frames or
// msgpack binary frames, and decodes audio_chunk payloads into numeric
// sample sequences.
package protocol
