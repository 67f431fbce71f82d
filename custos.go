// Package custos implements per-object permission storage and checking.
//
// Custos keeps object permissions in dedicated grant tables, one row per
// (principal, permission, object) triple, and answers permission checks by
// querying those tables. Permissions are granted to users directly or
// through group membership, either globally or against a single object.
//
// Basic usage:
//
//	eng, err := custos.NewEngine(
//		custos.WithStore(st),
//		custos.WithLogger(logger),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = eng.RegisterKind(ctx, custos.KindSpec{
//		Kind:      "document",
//		Codenames: []string{"view_document", "change_document"},
//	})
//
//	err = eng.Assign(ctx, "view_document", custos.UserSubject(joe), doc)
//	ok, err := eng.HasPerm(ctx, joe, "view_document", doc)
//
// Objects are anything implementing Object; the engine never touches the
// object rows themselves, only the grant tables that reference them.
package custos

import (
	"github.com/xraph/custos/principal"
	"github.com/xraph/custos/target"
)

// Object is a domain object that grants can reference. Implementations
// report the registered kind they belong to and their primary key rendered
// as a string.
type Object interface {
	// ObjectKind returns the kind the object was registered under.
	ObjectKind() string

	// ObjectKey returns the canonical string form of the object's primary
	// key. An empty key marks the object as not yet persisted.
	ObjectKey() string
}

// Ref builds a plain object reference from a kind and key. It is the
// cheapest Object implementation and the form the engine uses internally.
func Ref(kind, key string) target.Ref {
	return target.Ref{Kind: kind, Key: key}
}

var _ Object = target.Ref{}

// Subject is the principal side of an assignment: a single user, a single
// group, or a batch of either. Construct one with UserSubject, GroupSubject,
// UsersSubject, or GroupsSubject.
type Subject struct {
	user   *principal.User
	group  *principal.Group
	users  []*principal.User
	groups []*principal.Group
	plural bool
}

// UserSubject wraps a single user.
func UserSubject(u *principal.User) Subject {
	return Subject{user: u}
}

// GroupSubject wraps a single group.
func GroupSubject(g *principal.Group) Subject {
	return Subject{group: g}
}

// UsersSubject wraps a batch of users. The batch is treated as plural even
// when it holds one element, which matters for bulk-assignment rules.
func UsersSubject(users []*principal.User) Subject {
	return Subject{users: users, plural: true}
}

// GroupsSubject wraps a batch of groups.
func GroupsSubject(groups []*principal.Group) Subject {
	return Subject{groups: groups, plural: true}
}

// IsPlural reports whether the subject is a batch form.
func (s Subject) IsPlural() bool { return s.plural }
