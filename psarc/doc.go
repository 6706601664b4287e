// Package psarc reads Playstation archive (.psarc) containers.
//
// A psarc file stores its entries under content-addressed names: the table
// of contents records only an MD5 digest of each entry's path, and the true
// paths are recovered from the archive's own manifest, a newline-separated
// path list stored by convention as the first entry. Entry data is split
// into fixed-size blocks that are individually zlib-compressed or stored
// raw when compression would not help.
//
// Parsing is synchronous and side-effect free. An Archive and everything it
// returns are freshly allocated values; distinct entries may be extracted
// concurrently from the same Archive.
package psarc
