package custos

import "errors"

var (
	// ErrObjectNotPersisted is returned when a grant operation receives an
	// object whose key is empty.
	ErrObjectNotPersisted = errors.New("custos: object has no key, save it first")

	// ErrNotUserNorGroup is returned when a subject carries neither a user
	// nor a group.
	ErrNotUserNorGroup = errors.New("custos: subject is neither a user nor a group")

	// ErrWrongKind is returned when a qualified permission code names a kind
	// other than the object's kind.
	ErrWrongKind = errors.New("custos: permission kind does not match object kind")

	// ErrMixedKinds is returned when one call mixes objects of different
	// kinds, or permission codes qualified with different kinds.
	ErrMixedKinds = errors.New("custos: call mixes different kinds")

	// ErrAmbiguousBulk is returned when a bulk assignment is plural on both
	// the subject and the object side.
	ErrAmbiguousBulk = errors.New("custos: bulk assignment cannot be plural on both sides")

	// ErrInvalidCode is returned when a permission code is malformed, for
	// example a global grant without a kind qualifier.
	ErrInvalidCode = errors.New("custos: invalid permission code")

	// ErrBulkGlobalUnsupported is returned when a bulk assignment targets
	// global permissions.
	ErrBulkGlobalUnsupported = errors.New("custos: bulk assignment requires an object")

	// ErrAnonymousDisabled is returned when the anonymous user is requested
	// but disabled by configuration.
	ErrAnonymousDisabled = errors.New("custos: anonymous user is disabled")

	// ErrKindNotRegistered is returned when an operation needs a registered
	// kind that the registry does not know.
	ErrKindNotRegistered = errors.New("custos: kind not registered")

	// ErrInvalidConfig is returned when engine configuration is invalid.
	ErrInvalidConfig = errors.New("custos: invalid config")
)
