// Package forestkv implements an approximate nearest-neighbor index over
// dense float32 vectors: a random-projection binary forest built in
// parallel, persisted through a pluggable tagged key-value store, and
// queried with a best-first search engine. See the writer, reader, builder,
// and diagnostic subpackages for the state machine, search algorithm, and
// invariant walk this façade wires together.
package forestkv
