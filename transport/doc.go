// Package transport converts session tokens to and from the value that crosses
// the wire. The encrypted codecs keep raw signed tokens out of intermediary logs
// and URLs; they add no authentication guarantee of their own.
package transport
