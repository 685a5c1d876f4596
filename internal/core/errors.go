package core

import "errors"

var (
	// ErrMetadataNotFound means a corpus document has no entry in the metadata descriptor.
	ErrMetadataNotFound = errors.New("metadata not found")

	// ErrIndexExists means CreateIndex found an index with the same name.
	ErrIndexExists = errors.New("index already exists")

	// ErrObjectExists means an upload without overwrite hit an existing object.
	ErrObjectExists = errors.New("object already exists")

	// ErrObjectNotFound means the requested blob does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrDimensionMismatch means an embedding does not have the configured length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidArchive means the corpus archive is corrupt or unsafe to extract.
	ErrInvalidArchive = errors.New("invalid archive")
)
