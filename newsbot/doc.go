// Package newsbot implements a Discord bot that lets moderators compose,
// preview, edit and publish announcement embeds to news channels.
//
// Announcements are built interactively: a create or edit command opens a
// builder message with one button per draft field. Each button opens a
// modal; submitting it updates the [Draft] and re-renders the preview. The
// operator then posts (or edits) the announcement, optionally pinging a
// role, crossposting it to following servers and reposting a copy to
// each configured repost channel.
//
// Key components of the package include:
//
//   - Bot: owns the Discord session, the builder sessions, the audit
//     database and the optional API and webhook servers.
//   - Draft: the mutable announcement being composed, with its rendering
//     and reverse-parsing of already-posted announcements.
//   - Session: one operator's builder, bound to a single Draft.
//   - API: a small read-only admin API for recent announcements,
//     open sessions and received interactions.
//
// Commands are available both as text commands (using the configured
// prefix, or a bot mention) and as slash commands:
//
//   - announcements create [template], edit <message>, delete <message>,
//     instructions
//   - templates list, templates view <name>, template <name>
//   - previews
//   - ids / channels
package newsbot
