package bot

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

// PermissionCache is the slice of the client cache needed to compute a
// member's permissions.
type PermissionCache interface {
	Guild(guildID snowflake.ID) (discord.Guild, bool)
	Role(guildID snowflake.ID, roleID snowflake.ID) (discord.Role, bool)
}

// MemberPermissions computes member's permissions in a guild, then applies
// the overwrites of the channel when one is given.
func MemberPermissions(c PermissionCache, guildID snowflake.ID, member discord.Member, overwrites []discord.PermissionOverwrite) discord.Permissions {
	guild, ok := c.Guild(guildID)
	if !ok {
		return 0
	}
	if guild.OwnerID == member.User.ID {
		return discord.PermissionsAll
	}

	var perms discord.Permissions
	if everyone, ok := c.Role(guildID, guildID); ok {
		perms |= everyone.Permissions
	}
	for _, roleID := range member.RoleIDs {
		if role, ok := c.Role(guildID, roleID); ok {
			perms |= role.Permissions
		}
	}
	if perms.Has(discord.PermissionAdministrator) {
		return discord.PermissionsAll
	}

	for _, o := range overwrites {
		if ro, ok := o.(discord.RolePermissionOverwrite); ok && o.ID() == guildID {
			perms &^= ro.Deny
			perms |= ro.Allow
		}
	}

	var roleAllow, roleDeny discord.Permissions
	for _, o := range overwrites {
		ro, ok := o.(discord.RolePermissionOverwrite)
		if !ok || o.ID() == guildID {
			continue
		}
		for _, roleID := range member.RoleIDs {
			if o.ID() == roleID {
				roleDeny |= ro.Deny
				roleAllow |= ro.Allow
				break
			}
		}
	}
	perms &^= roleDeny
	perms |= roleAllow

	for _, o := range overwrites {
		if mo, ok := o.(discord.MemberPermissionOverwrite); ok && o.ID() == member.User.ID {
			perms &^= mo.Deny
			perms |= mo.Allow
		}
	}
	return perms
}
