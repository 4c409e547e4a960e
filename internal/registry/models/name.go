package models

// Name is the unique key a record is stored under. It is opaque to the
// registry; construct it with Policy.ParseName at trust boundaries.
type Name string

func (n Name) String() string {
	return string(n)
}
