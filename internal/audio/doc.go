// Package audio converts call audio between the telephony codec and the
// realtime model codec. It implements G.711 mu-law encoding and decoding,
// little-endian PCM16 byte packing, and the Frame type that tags a payload
// with its encoding.
package audio
