/*
Package session manages the authenticated user session for Scamwatch portal
clients.

# Overview

The package is organized around two types:

  - Client: one method per auth service endpoint, stateless apart from the
    cookie jar the service writes its HTTP-only tokens into
  - Manager: the stateful session owner. It holds the current user and runs
    background token refresh, periodic session validation, role/permission
    checks and state-change notifications

Construct both explicitly and pass the Manager to whatever needs it; there is
no package-level instance:

	client := session.NewClient("https://auth.scamwatch.example")
	mgr := session.NewManager(client)

	// Resume a previous cookie session, if any.
	mgr.Restore(ctx)

	result := mgr.Login(ctx, email, password, rememberMe)
	switch {
	case result.Success:
		// result.User is set
	case result.RequiresTwoFactor:
		result = mgr.LoginWithTwoFactor(ctx, email, password, code)
	case result.LockoutTime > 0:
		// show a cooldown for result.LockoutTime
	default:
		// show result.Error
	}

# Session Upkeep

While authenticated the Manager runs two background loops: a token refresh
every minute and a session-validity check every five minutes. A successful
refresh silently reloads the profile so server-side role changes propagate; a
rejected refresh or validity check clears the session. Both loops start and
stop together; Logout tears them down before local state clears.

Any authenticated call that comes back 401 triggers exactly one refresh and
one retry. There is no retry loop, so a dead refresh token cannot cause a
refresh storm.

# Results, Not Errors

Manager methods never let a transport error escape. Each operation returns a
discriminated result (LoginResult, SignupResult, OpResult) with user-facing
messages, so UI code can branch without wrapping calls in error handling.
Lockouts and two-factor challenges are distinguished fields, not string
matching.

# Observing State

OnAuthStateChange registers a listener and invokes it immediately with the
current state, so late subscribers never miss the present value:

	unsubscribe := mgr.OnAuthStateChange(func(u *session.User) {
		// u == nil means anonymous
	})
	defer unsubscribe()

Listeners always observe a fully swapped user; notification happens after the
mutation completes.

# Testing

The Clock abstraction (WithClock) lets tests drive the background timers with
a fake clock instead of waiting on real intervals, and the cookie-based Client
points at any httptest server.
*/
package session
