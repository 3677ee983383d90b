package deserial

import "errors"

// the payload is not a well-formed tagged dict, or its shape does not
// fit the entity it claims to be.
var ErrDeserialize = errors.New("cannot deserialize payload")

// the payload is well-formed but its content is not acceptable:
// a field has the wrong type, an identity reference is ambiguous,
// or required creation data is absent.
var ErrValidation = errors.New("payload validation failed")

// the tagged dict names a class no resolver is registered for.
var ErrUnknownEntityType = errors.New("unknown entity type")
