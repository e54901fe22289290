// Package bridge couples the two legs of a call. Each Session owns the
// lifecycle of one telephony media stream and one realtime model session,
// relays audio between them with codec conversion, and tears both down
// together. Manager keeps the registry of live sessions.
package bridge
