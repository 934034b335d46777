package domain

// LibraryPolicy is the editability gate shared by every aggregate filed under
// the named library.
type LibraryPolicy struct {
	Name     string `json:"name"`
	Editable bool   `json:"editable"`
}

// RequireEditable returns LibraryNotEditableError when the library blocks
// the named operation.
func (l LibraryPolicy) RequireEditable(operation Action) error {
	if l.Editable {
		return nil
	}
	return LibraryNotEditableError{Library: l.Name, Operation: operation}
}
