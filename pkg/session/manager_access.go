package session

// Read-side surface: getters, role/permission checks and state-change
// subscriptions. Everything here takes the read lock only.

// Client returns the underlying HTTP client. Its cookie jar holds the
// session cookies, so sharing the client shares the session.
func (m *Manager) Client() *Client {
	return m.client
}

// User returns a copy of the current user, or nil when anonymous.
func (m *Manager) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.clone()
}

// IsAuthenticated reports whether a user is currently set.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

// UserRole returns the current user's role, or RoleGuest when anonymous.
func (m *Manager) UserRole() Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return RoleGuest
	}
	return m.user.Role
}

// UserPermissions returns a copy of the current permission set; empty when
// anonymous.
func (m *Manager) UserPermissions() []Permission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	return append([]Permission(nil), m.user.Permissions...)
}

// HasRole reports whether the current user's role is at least as privileged
// as role. Always false while anonymous.
func (m *Manager) HasRole(role Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.user.Role.AtLeast(role)
}

// HasPermission reports exact membership of p in the current permission set.
// Role rank plays no part here: an admin without the super_admin permission
// does not pass a super_admin check.
func (m *Manager) HasPermission(p Permission) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.user.HasPermission(p)
}

// HasAnyRole reports whether any of the given roles passes HasRole.
func (m *Manager) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if m.HasRole(role) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether any of the given permissions passes
// HasPermission.
func (m *Manager) HasAnyPermission(perms ...Permission) bool {
	for _, p := range perms {
		if m.HasPermission(p) {
			return true
		}
	}
	return false
}

// OnAuthStateChange registers fn and immediately invokes it once with the
// current state, so late subscribers never miss the present value. The
// returned function removes the listener; calling it more than once is
// harmless.
func (m *Manager) OnAuthStateChange(fn func(*User)) func() {
	m.mu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = fn
	current := m.user.clone()
	m.mu.Unlock()

	fn(current)

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}
