// Package protocol implements the two JSON wire codecs a call session speaks.
// The media stream codec decodes telephony provider frames into the closed
// DownstreamEvent variants and builds outbound media and mark frames. The
// realtime codec decodes model server events into UpstreamEvent variants and
// builds the client events that configure the model session and feed it audio.
package protocol
