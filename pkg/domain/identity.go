package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "namereg/pkg/domain-errors"
)

// IdentityKind distinguishes the principal variants a registry understands.
type IdentityKind string

const (
	IdentityKindAddress  IdentityKind = "address"
	IdentityKindContract IdentityKind = "contract"
)

const maxIdentityValueLength = 128

// Identity is an opaque principal reference.
// Invariant: Kind is a known kind and Value is non-empty printable text without
// whitespace. The zero Identity is "no identity".
//
// Identities are compared with ==; nothing else about their structure is
// interpreted by the registry.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// NewAddress builds an address identity without validation. Use ParseIdentity
// at trust boundaries.
func NewAddress(value string) Identity {
	return Identity{Kind: IdentityKindAddress, Value: value}
}

// NewContract builds a contract identity without validation.
func NewContract(value string) Identity {
	return Identity{Kind: IdentityKindContract, Value: value}
}

// ParseIdentity parses the textual form "<kind>:<value>".
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	kind, value, ok := strings.Cut(s, ":")
	if !ok {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "identity must have the form <kind>:<value>")
	}
	ident := Identity{Kind: IdentityKind(kind), Value: value}
	if err := ident.Validate(); err != nil {
		return Identity{}, err
	}
	return ident, nil
}

// Validate checks the identity invariants.
func (i Identity) Validate() error {
	switch i.Kind {
	case IdentityKindAddress, IdentityKindContract:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown identity kind")
	}
	if i.Value == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identity value is required")
	}
	if len(i.Value) > maxIdentityValueLength {
		return dErrors.New(dErrors.CodeInvalidInput, "identity value is too long")
	}
	if !utf8.ValidString(i.Value) {
		return dErrors.New(dErrors.CodeInvalidInput, "identity value must be valid UTF-8")
	}
	for _, r := range i.Value {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return dErrors.New(dErrors.CodeInvalidInput, "identity value contains invalid characters")
		}
	}
	return nil
}

// IsNil reports whether the identity is the zero value.
func (i Identity) IsNil() bool {
	return i == Identity{}
}

func (i Identity) String() string {
	if i.IsNil() {
		return ""
	}
	return string(i.Kind) + ":" + i.Value
}

// MarshalText implements encoding.TextMarshaler.
func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text yields the
// zero identity.
func (i *Identity) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*i = Identity{}
		return nil
	}
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
