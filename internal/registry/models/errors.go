package models

// Kind is a registry failure kind. Kinds are comparable constants so callers
// can match them with errors.Is through any amount of wrapping, and the kind
// text doubles as the machine-readable reason reported to clients.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// ErrNameNotRegistered: no record has ever been created for the name.
	ErrNameNotRegistered Kind = "NameNotRegistered"
	// ErrNameNotAvailable: register on a name whose record has not expired.
	ErrNameNotAvailable Kind = "NameNotAvailable"
	// ErrSenderNotOwner: mutation by an identity other than the stored owner.
	ErrSenderNotOwner Kind = "SenderNotOwner"
	// ErrInvalidDuration: non-positive or policy-violating duration.
	ErrInvalidDuration Kind = "InvalidDuration"
	// ErrNameExpired: owner mutation on an expired record; re-register instead.
	ErrNameExpired Kind = "NameExpired"
	// ErrInvalidName: empty or over-long name.
	ErrInvalidName Kind = "InvalidName"
)
