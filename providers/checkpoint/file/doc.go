// Package file provides a checkpoint.Store that writes one JSON document per
// checkpoint:
//
//	<root>/<run-id>/<sequence>_<node>.json
//
// The sequence is zero-padded to six digits so a directory listing is already
// in commit order. Files are written to a temporary name and renamed into
// place, so a crash never leaves a half-written checkpoint behind. Run IDs and
// node names are reduced to a single safe path element before use.
//
// The store serializes writes within one process; it does not lock the
// directory against other processes.
package file
