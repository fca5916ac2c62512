package codec

import "errors"

var (
	// ErrNotPushDrop means the script does not have the pushdrop shape.
	ErrNotPushDrop = errors.New("codec: not a pushdrop script")

	// ErrNotTagged means the script is not a tagged OP_RETURN payload.
	ErrNotTagged = errors.New("codec: not a tagged op_return script")
)
