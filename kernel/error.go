package kernel

// Error describes an error condition detected by one of the kernel
// subsystems. As the Go allocator is not available during early boot,
// all kernel errors must be declared as global variables pointing to
// an Error value instead of being constructed via errors.New.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
