package newsbot

import "slices"

// canPublish reports whether a user may manage announcements: either the
// user is allow-listed, or the command was sent from an allowed guild by a
// member holding an allowed role. When debug is set, the debug allow-lists
// are added to the base lists.
func canPublish(
	perms PermissionsConfig,
	debug bool,
	guildID string,
	userID string,
	roleIDs []string,
) bool {
	allow := perms.Effective(debug)
	if userID != "" && slices.Contains(allow.AllowedUsers, userID) {
		return true
	}
	if guildID == "" || !slices.Contains(allow.AllowedGuilds, guildID) {
		return false
	}
	for _, role := range roleIDs {
		if slices.Contains(allow.AllowedRoles, role) {
			return true
		}
	}
	return false
}
