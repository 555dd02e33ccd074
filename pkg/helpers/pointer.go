package helpers

// NonEmptyPointer returns nil for the empty string, a pointer to s otherwise.
func NonEmptyPointer(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
