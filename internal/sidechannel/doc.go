// Package sidechannel decodes the out-of-band pid record a subject writes
// after detaching.
//
// # Wire Format
//
// The record is three fields written back to back with no framing:
//
//	byte 0          unsigned width W (bytes per identifier)
//	bytes 1..W      parent pid, signed, native byte order
//	bytes W+1..2W   child pid, signed, native byte order
//
// Nothing may follow the record, but trailing bytes are never read.
//
// A short stream is a contract violation by the subject. Read never
// returns a partial Record.
package sidechannel
