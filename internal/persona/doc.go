// Package persona maps the upgrade path a call arrived on to the voice and
// instructions the realtime model speaks with.
package persona
