package ring

import "fmt"

// Contact is a reference to a node: its ring identifier plus the address
// remote calls are sent to. Contacts are passed by value; the authoritative
// state about a node lives only on that node.
type Contact struct {
	ID      ID
	Address string
}

// NewContact builds a contact from an identifier and an address.
func NewContact(id ID, address string) Contact {
	return Contact{ID: id, Address: address}
}

// Empty reports whether the contact refers to nothing (used where a
// predecessor may be unset).
func (c Contact) Empty() bool {
	return c.Address == ""
}

func (c Contact) String() string {
	if c.Empty() {
		return "(none)"
	}
	return fmt.Sprintf("%s@%s", c.ID, c.Address)
}
