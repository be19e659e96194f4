package domain

// ProfileState tracks where the profile lookup for the current session stands.
type ProfileState string

const (
	// ProfileStateNone means there is no session to attach a profile to.
	ProfileStateNone        ProfileState = "none"
	ProfileStateLoading     ProfileState = "loading"
	ProfileStateLoaded      ProfileState = "loaded"
	ProfileStateNotFound    ProfileState = "not_found"
	ProfileStateFetchFailed ProfileState = "fetch_failed"
)

// ResolvedIdentity is the merged view of session and profile.
// Profile is always nil when Session is nil.
type ResolvedIdentity struct {
	Session      *Session
	Profile      *Profile
	IsLoading    bool
	ProfileState ProfileState
	// Generation is the auth-change generation this snapshot belongs to.
	Generation uint64
	// Version increases with every published snapshot.
	Version uint64
}

// HasSession reports whether a session is present.
func (r ResolvedIdentity) HasSession() bool {
	return r.Session != nil
}

// Authenticated reports whether both session and profile are present.
func (r ResolvedIdentity) Authenticated() bool {
	return r.Session != nil && r.Profile != nil
}

// Role returns the profile role, or the empty role when there is no profile.
func (r ResolvedIdentity) Role() Role {
	if r.Profile == nil {
		return ""
	}
	return r.Profile.Role
}
