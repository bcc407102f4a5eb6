/*

Stowbase is a content-addressable object store kept in an ordinary
directory tree.  Each object is written once, to a file named by the
hex digest of its encoded bytes, and is read back by that identifier
or by any unambiguous prefix of it.

Vocabulary:

- id: lower case hex digest of an object's encoded bytes
- algo: name of the digest algorithm; md5 unless configured otherwise
- codec: converts objects to and from bytes; the bytes are what's hashed
- root: the store's top directory
- shard: a two hex digit subdirectory; files go into a shard only once
	its parent holds MaxFilesPerDir entries, so a file's depth depends on
	when it was written
- suffix: the part of an id not spelled by the shards above its file
- cursor: an ordered, seekable, splittable walk over every id

Files are never rewritten.  Writing an object that's already stored
checks the stored copy against the new one instead.

*/

package stowbase
