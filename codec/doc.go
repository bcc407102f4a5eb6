// Package codec provides stowbase codecs for structured values.
//
// Every encoding here is deterministic for a given value, since the
// encoded bytes are what a store hashes: maps are written with sorted
// keys and integers in their smallest form.
package codec
