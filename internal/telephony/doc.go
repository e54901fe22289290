// Package telephony implements the downstream leg of a call session: the
// media stream websocket opened by the telephony provider. It decodes inbound
// frames into protocol.DownstreamEvent values and writes media and mark frames
// back to the caller.
package telephony
