package access

import "context"

// UserType is the coarse classification of the current principal. The
// concrete variants are Loading, Staff and Client.
type UserType interface {
	isUserType()
	String() string
}

// Loading means authentication has not finished resolving.
type Loading struct{}

// Staff means the principal holds at least one staff role.
type Staff struct{}

// Client means the principal holds no staff role. Authenticated is false for
// a signed-out visitor.
type Client struct {
	Authenticated bool
}

func (Loading) isUserType() {}
func (Staff) isUserType()   {}
func (Client) isUserType()  {}

func (Loading) String() string { return "loading" }
func (Staff) String() string   { return "staff" }
func (Client) String() string  { return "client" }

// AuthState is the view of the authentication collaborator the resolver needs.
type AuthState interface {
	Resolving() bool
	Authenticated() bool
	Roles() RoleSet
}

// Resolve derives the user type from the authentication state. A resolving
// state always yields Loading, whatever roles are already known.
func Resolve(state AuthState, partition Partition) UserType {
	if state == nil {
		return Client{}
	}
	if state.Resolving() {
		return Loading{}
	}
	if partition.IsStaff(state.Roles()) {
		return Staff{}
	}
	return Client{Authenticated: state.Authenticated()}
}

type userTypeContextKey struct{}

// ContextWithUserType stores the resolved user type.
func ContextWithUserType(ctx context.Context, ut UserType) context.Context {
	return context.WithValue(ctx, userTypeContextKey{}, ut)
}

// UserTypeFromContext returns the resolved user type, or an anonymous Client
// when none was stored.
func UserTypeFromContext(ctx context.Context) UserType {
	if ut, ok := ctx.Value(userTypeContextKey{}).(UserType); ok && ut != nil {
		return ut
	}
	return Client{}
}
