// Package chain models a production run as an append-only log of segments.
//
// A Chain owns an ordered list of Segments that are contiguous in chain time
// and strictly increasing in offset. A Segment carries the choices,
// arrangements and picks its craft pass decided. Once a segment reaches
// Crafted its content is frozen; later transitions (Dubbing, Dubbed) may only
// attach output metadata.
//
// Stores persist chains and segments. Only terminal craft results (Crafted or
// Failed) are ever written, so readers never see a half-built segment.
package chain
