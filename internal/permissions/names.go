package permissions

import (
	"sort"

	"github.com/disgoorg/disgo/discord"
)

var byName = map[string]discord.Permissions{
	"create_instant_invite":    discord.PermissionCreateInstantInvite,
	"kick_members":             discord.PermissionKickMembers,
	"ban_members":              discord.PermissionBanMembers,
	"administrator":            discord.PermissionAdministrator,
	"manage_channels":          discord.PermissionManageChannels,
	"manage_guild":             discord.PermissionManageGuild,
	"add_reactions":            discord.PermissionAddReactions,
	"view_audit_log":           discord.PermissionViewAuditLog,
	"view_channel":             discord.PermissionViewChannel,
	"read_messages":            discord.PermissionViewChannel,
	"send_messages":            discord.PermissionSendMessages,
	"manage_messages":          discord.PermissionManageMessages,
	"embed_links":              discord.PermissionEmbedLinks,
	"attach_files":             discord.PermissionAttachFiles,
	"read_message_history":     discord.PermissionReadMessageHistory,
	"mention_everyone":         discord.PermissionMentionEveryone,
	"use_external_emojis":      discord.PermissionUseExternalEmojis,
	"connect":                  discord.PermissionConnect,
	"speak":                    discord.PermissionSpeak,
	"mute_members":             discord.PermissionMuteMembers,
	"deafen_members":           discord.PermissionDeafenMembers,
	"move_members":             discord.PermissionMoveMembers,
	"change_nickname":          discord.PermissionChangeNickname,
	"manage_nicknames":         discord.PermissionManageNicknames,
	"manage_roles":             discord.PermissionManageRoles,
	"manage_webhooks":          discord.PermissionManageWebhooks,
	"manage_threads":           discord.PermissionManageThreads,
	"send_messages_in_threads": discord.PermissionSendMessagesInThreads,
	"moderate_members":         discord.PermissionModerateMembers,
}

// ParseName returns the permission bit for a snake_case name.
func ParseName(name string) (discord.Permissions, bool) {
	p, ok := byName[name]
	return p, ok
}

// Names returns every known permission name in sorted order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
