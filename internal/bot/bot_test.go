package bot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeineian/singularity/internal/errs"
	"github.com/leeineian/singularity/internal/logger"
	"github.com/leeineian/singularity/internal/owner"
	"github.com/leeineian/singularity/internal/permissions"
	"github.com/leeineian/singularity/internal/store"
)

const (
	testSelfID  snowflake.ID = 1000
	testUserID  snowflake.ID = 2000
	testOwnerID snowflake.ID = 3000
	testGuildID snowflake.ID = 4000
	testChanID  snowflake.ID = 5000
)

type fakeInteraction struct {
	mu          sync.Mutex
	created     []discord.MessageCreate
	followups   []discord.MessageCreate
	channel     []discord.MessageCreate
	updates     []discord.MessageUpdate
	deferred    bool
	createErr   error
	followupErr error
	channelErr  error
}

func (f *fakeInteraction) CreateMessage(msg discord.MessageCreate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeInteraction) DeferCreateMessage(bool) error {
	f.mu.Lock()
	f.deferred = true
	f.mu.Unlock()
	return nil
}

func (f *fakeInteraction) UpdateMessage(msg discord.MessageUpdate) error {
	f.mu.Lock()
	f.updates = append(f.updates, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeInteraction) DeferUpdateMessage() error { return nil }

func (f *fakeInteraction) CreateFollowup(msg discord.MessageCreate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.followupErr != nil {
		return f.followupErr
	}
	f.followups = append(f.followups, msg)
	return nil
}

func (f *fakeInteraction) SendToChannel(msg discord.MessageCreate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelErr != nil {
		return f.channelErr
	}
	f.channel = append(f.channel, msg)
	return nil
}

func (f *fakeInteraction) EditOriginal(msg discord.MessageUpdate) error {
	return f.UpdateMessage(msg)
}

func (f *fakeInteraction) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created) + len(f.followups) + len(f.channel)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []discord.MessageCreate
	to   []snowflake.ID
	err  error
}

func (f *fakeSender) CreateMessage(channelID snowflake.ID, msg discord.MessageCreate, _ ...rest.RequestOpt) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	f.to = append(f.to, channelID)
	return &discord.Message{ChannelID: channelID, Content: msg.Content}, nil
}

type fakeOwnerBackend struct {
	sent []discord.Embed
}

func (f *fakeOwnerBackend) Send(_ context.Context, _ snowflake.ID, embed discord.Embed) error {
	f.sent = append(f.sent, embed)
	return nil
}

func (f *fakeOwnerBackend) Guild(snowflake.ID) (owner.GuildInfo, bool) { return owner.GuildInfo{}, false }
func (f *fakeOwnerBackend) Guilds() []owner.GuildInfo { return nil }
func (f *fakeOwnerBackend) LeaveGuild(context.Context, snowflake.ID) error { return nil }
func (f *fakeOwnerBackend) SyncCommands(context.Context, *snowflake.ID) error { return nil }

func newTestBot(t *testing.T, lookup permissions.Lookup) (*Bot, *fakeSender) {
	t.Helper()
	hub := logger.NewHub(logger.HubOptions{})
	t.Cleanup(func() { _ = hub.Close(context.Background()) })

	b := newBot(context.Background(), Options{Hub: hub, Permissions: lookup})
	sender := &fakeSender{}
	b.sender = sender
	b.setSelfID(testSelfID)
	return b, sender
}

func guildContext(b *Bot, ia Interaction, name string, member, bot discord.Permissions) *Context {
	guildID := testGuildID
	c := b.newContext(context.Background(), ia)
	c.User = discord.User{ID: testUserID, Username: "tester"}
	c.GuildID = &guildID
	c.ChannelID = testChanID
	c.CommandName = name
	c.Member = &discord.ResolvedMember{Permissions: member}
	c.BotPermissions = bot
	return c
}

func TestGuardReportsFailureOnce(t *testing.T) {
	tests := []struct {
		name    string
		handler HandlerFunc
	}{
		{"error", func(*Context) error { return errors.New("boom") }},
		{"panic", func(*Context) error { panic("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBot(t, nil)
			ia := &fakeInteraction{}
			c := guildContext(b, ia, "help", 0, discord.PermissionsAll)

			b.guard(c, kindCommand, "help", tt.handler)

			require.Len(t, ia.created, 1)
			assert.Equal(t, 1, ia.total())
			msg := ia.created[0]
			assert.True(t, msg.Flags.Has(discord.MessageFlagEphemeral))
			require.Len(t, msg.Embeds, 1)
			assert.Equal(t, MsgErrorTitle, msg.Embeds[0].Title)
			assert.Equal(t, MsgErrorApology, msg.Embeds[0].Description)

			records := b.Hub.RecentOfType(logger.TypeError)
			require.Len(t, records, 1)
			assert.Contains(t, records[0].Message, "boom")
			keys := make([]string, 0, len(records[0].Extras))
			for _, e := range records[0].Extras {
				keys = append(keys, e.Key)
			}
			assert.Contains(t, keys, "error_id")
		})
	}
}

func TestGuardAfterDeferUsesFollowup(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ia := &fakeInteraction{}
	c := guildContext(b, ia, "help", 0, discord.PermissionsAll)

	b.guard(c, kindCommand, "help", func(c *Context) error {
		require.NoError(t, c.Defer(true))
		return errors.New("late failure")
	})

	assert.True(t, ia.deferred)
	assert.Empty(t, ia.created)
	assert.Len(t, ia.followups, 1)
	assert.Equal(t, 1, ia.total())
}

func TestGuardWarnsWithoutResponse(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ia := &fakeInteraction{}
	c := guildContext(b, ia, "help", 0, discord.PermissionsAll)

	b.guard(c, kindCommand, "help", func(*Context) error { return nil })

	assert.Zero(t, ia.total())
	warnings := b.Hub.RecentOfType(logger.TypeMinorWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "help did not respond to interaction.", warnings[0].Message)
}

type fakeReplier struct {
	calls                      []string
	respond, followup, channel error
	last                       discord.MessageCreate
}

func (f *fakeReplier) Respond(msg discord.MessageCreate) error {
	f.calls = append(f.calls, "respond")
	f.last = msg
	return f.respond
}

func (f *fakeReplier) Followup(msg discord.MessageCreate) error {
	f.calls = append(f.calls, "followup")
	f.last = msg
	return f.followup
}

func (f *fakeReplier) SendToChannel(msg discord.MessageCreate) error {
	f.calls = append(f.calls, "channel")
	f.last = msg
	return f.channel
}

func TestReplyWithFallback(t *testing.T) {
	fail := errors.New("fail")
	tests := []struct {
		name    string
		replier *fakeReplier
		calls   []string
		wantErr bool
	}{
		{"respond", &fakeReplier{}, []string{"respond"}, false},
		{"followup", &fakeReplier{respond: fail}, []string{"respond", "followup"}, false},
		{"channel", &fakeReplier{respond: fail, followup: fail}, []string{"respond", "followup", "channel"}, false},
		{"all fail", &fakeReplier{respond: fail, followup: fail, channel: fail}, []string{"respond", "followup", "channel"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ReplyWithFallback(tt.replier, discord.NewMessageCreate().WithContent("x").WithEphemeral(true))
			assert.Equal(t, tt.calls, tt.replier.calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, fail)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestReplyWithFallbackChannelIsNotEphemeral(t *testing.T) {
	fail := errors.New("fail")
	r := &fakeReplier{respond: fail, followup: fail}
	require.NoError(t, ReplyWithFallback(r, discord.NewMessageCreate().WithContent("x").WithEphemeral(true)))
	assert.False(t, r.last.Flags.Has(discord.MessageFlagEphemeral))
}

func TestDispatchCommandPermissions(t *testing.T) {
	table := permissions.NewTable(map[string]permissions.Entry{
		"workers": {Member: []string{"manage_guild"}, Bot: []string{"embed_links"}},
	})

	tests := []struct {
		name       string
		member     discord.Permissions
		bot        discord.Permissions
		wantRun    bool
		wantReason string
	}{
		{"member missing permission", discord.PermissionSendMessages, discord.PermissionEmbedLinks, false, "You have the following permissions"},
		{"bot missing permission", discord.PermissionManageGuild, discord.PermissionSendMessages, false, "I have the following permissions"},
		{"administrator", discord.PermissionAdministrator, discord.PermissionEmbedLinks, true, ""},
		{"all granted", discord.PermissionManageGuild, discord.PermissionEmbedLinks, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBot(t, table)
			ia := &fakeInteraction{}
			c := guildContext(b, ia, "workers", tt.member, tt.bot)

			ran := false
			b.dispatchCommand(c, Command{
				Create: discord.SlashCommandCreate{Name: "workers"},
				Handler: func(c *Context) error {
					ran = true
					return c.Reply(discord.NewMessageCreate().WithContent("ok"))
				},
			})

			assert.Equal(t, tt.wantRun, ran)
			require.Len(t, ia.created, 1)
			if !tt.wantRun {
				assert.Contains(t, ia.created[0].Content, tt.wantReason)
				assert.True(t, ia.created[0].Flags.Has(discord.MessageFlagEphemeral))
			}
		})
	}
}

func TestDispatchCommandGuildOnly(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ia := &fakeInteraction{}
	c := b.newContext(context.Background(), ia)
	c.User = discord.User{ID: testUserID}
	c.CommandName = "workers"

	ran := false
	b.dispatchCommand(c, Command{
		Create:    discord.SlashCommandCreate{Name: "workers"},
		GuildOnly: true,
		Handler:   func(*Context) error { ran = true; return nil },
	})

	assert.False(t, ran)
	require.Len(t, ia.created, 1)
	assert.Equal(t, MsgGuildOnly, ia.created[0].Content)
}

func TestDispatchCommandLogsInvocation(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ia := &fakeInteraction{}
	c := guildContext(b, ia, "help", 0, discord.PermissionsAll)

	b.dispatchCommand(c, Command{
		Create:  discord.SlashCommandCreate{Name: "help"},
		Handler: func(c *Context) error { return c.Reply(discord.NewMessageCreate().WithContent("hi")) },
	})

	records := b.Hub.RecentOfType(logger.TypeSlashCommand)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Message, "`help`")
}

func TestDispatchComponentLogsCallback(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ia := &fakeInteraction{}
	c := guildContext(b, ia, "", 0, discord.PermissionsAll)
	c.CustomID = "help:main:1"

	b.dispatchComponent(c, func(c *Context) error {
		return c.Update(discord.NewMessageUpdate().WithContent("done"))
	})

	assert.Len(t, ia.updates, 1)
	assert.Len(t, b.Hub.RecentOfType(logger.TypeInteractionCallback), 1)
}

func TestSendAsEphemeral(t *testing.T) {
	guildID := testGuildID
	tests := []struct {
		name        string
		guild       *snowflake.ID
		bot         discord.Permissions
		makeVisible bool
		want        bool
	}{
		{"dm", nil, 0, false, false},
		{"dm visible", nil, 0, true, false},
		{"no embed links", &guildID, discord.PermissionSendMessages, true, true},
		{"visible", &guildID, discord.PermissionEmbedLinks, true, false},
		{"hidden", &guildID, discord.PermissionEmbedLinks, false, true},
		{"administrator", &guildID, discord.PermissionAdministrator, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Context{GuildID: tt.guild, BotPermissions: tt.bot}
			assert.Equal(t, tt.want, c.SendAsEphemeral(tt.makeVisible))
		})
	}
}

func TestHandleMessageDM(t *testing.T) {
	b, sender := newTestBot(t, nil)
	m := discord.Message{
		ChannelID: testChanID,
		Content:   "hello",
		Author:    discord.User{ID: testUserID, Username: "tester"},
	}

	require.NoError(t, b.handleMessage(context.Background(), m, nil))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, MsgBeepBoop, sender.sent[0].Content)
	assert.Equal(t, testChanID, sender.to[0])

	dms := b.Hub.RecentOfType(logger.TypeDMReceived)
	require.Len(t, dms, 1)
	assert.Contains(t, dms[0].Message, "hello")
}

func TestHandleMessageIgnored(t *testing.T) {
	guildID := testGuildID
	tests := []struct {
		name  string
		msg   discord.Message
		guild *snowflake.ID
	}{
		{"self", discord.Message{Author: discord.User{ID: testSelfID}, Content: "hi"}, nil},
		{"other bot", discord.Message{Author: discord.User{ID: testUserID, Bot: true}, Content: "hi"}, nil},
		{"guild message", discord.Message{Author: discord.User{ID: testUserID}, Content: "hi"}, &guildID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, sender := newTestBot(t, nil)
			require.NoError(t, b.handleMessage(context.Background(), tt.msg, tt.guild))
			assert.Empty(t, sender.sent)
			assert.Empty(t, b.Hub.RecentOfType(logger.TypeDMReceived))
		})
	}
}

func TestHandleMessageOwnerCommand(t *testing.T) {
	b, sender := newTestBot(t, nil)
	backend := &fakeOwnerBackend{}
	b.Owner = owner.NewConsole(owner.Options{
		Prefix:  "s!",
		Owners:  []snowflake.ID{testOwnerID},
		Backend: backend,
	})

	m := discord.Message{ChannelID: testChanID, Content: "s!help", Author: discord.User{ID: testOwnerID}}
	require.NoError(t, b.handleMessage(context.Background(), m, nil))

	require.Len(t, backend.sent, 1)
	for _, name := range b.Owner.CommandNames() {
		assert.Contains(t, backend.sent[0].Description, "**"+name+"**")
	}
	assert.Empty(t, sender.sent, "owner commands are not answered with BeepBoop")
}

func TestHandleMessageNonOwnerPrefix(t *testing.T) {
	b, sender := newTestBot(t, nil)
	backend := &fakeOwnerBackend{}
	b.Owner = owner.NewConsole(owner.Options{Prefix: "s!", Owners: []snowflake.ID{testOwnerID}, Backend: backend})

	m := discord.Message{ChannelID: testChanID, Content: "s!help", Author: discord.User{ID: testUserID}}
	require.NoError(t, b.handleMessage(context.Background(), m, nil))

	assert.Empty(t, backend.sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, MsgBeepBoop, sender.sent[0].Content)
}

func TestSendMessageFailure(t *testing.T) {
	b, sender := newTestBot(t, nil)
	sender.err = errors.New("missing access")

	_, err := b.SendMessage(context.Background(), testChanID, discord.NewMessageCreate().WithContent("x"))
	require.Error(t, err)
	assert.True(t, errs.IsSendFailure(err))
	assert.Contains(t, err.Error(), "missing access")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	noop := func(*Context) error { return nil }

	require.NoError(t, r.AddCommand(Command{Create: discord.SlashCommandCreate{Name: "help"}, Handler: noop, Menu: "general"}))
	require.NoError(t, r.AddCommand(Command{Create: discord.SlashCommandCreate{Name: "secret"}, Handler: noop, Menu: "general", Unlisted: true}))
	assert.Error(t, r.AddCommand(Command{Create: discord.SlashCommandCreate{Name: "help"}, Handler: noop}))
	assert.Error(t, r.AddCommand(Command{Create: discord.SlashCommandCreate{Name: ""}, Handler: noop}))

	_, ok := r.Command("help")
	assert.True(t, ok)
	assert.Len(t, r.Creates(), 2)
	menu := r.Menu("general")
	require.Len(t, menu, 1)
	assert.Equal(t, "help", menu[0].Name())

	var hit string
	r.AddComponent("help:", func(*Context) error { hit = "help"; return nil })
	r.AddComponent("help:close:", func(*Context) error { hit = "close"; return nil })
	r.AddComponent("exact", func(*Context) error { hit = "exact"; return nil })

	tests := []struct {
		customID string
		want     string
		found    bool
	}{
		{"exact", "exact", true},
		{"help:main:1", "help", true},
		{"help:close:1", "close", true},
		{"unknown", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.customID, func(t *testing.T) {
			hit = ""
			h, ok := r.Component(tt.customID)
			require.Equal(t, tt.found, ok)
			if ok {
				require.NoError(t, h(nil))
			}
			assert.Equal(t, tt.want, hit)
		})
	}
}

func TestPlanSync(t *testing.T) {
	tests := []struct {
		name    string
		current syncState
		last    syncState
		force   bool
		want    syncPlan
	}{
		{
			name:    "global unchanged",
			current: syncState{Hash: "abc", Mode: modeGlobal},
			last:    syncState{Hash: "abc", Mode: modeGlobal},
			want:    syncPlan{Mode: modeGlobal},
		},
		{
			name:    "global new hash",
			current: syncState{Hash: "def", Mode: modeGlobal},
			last:    syncState{Hash: "abc", Mode: modeGlobal},
			want:    syncPlan{Mode: modeGlobal, Register: true},
		},
		{
			name:    "guild to global",
			current: syncState{Hash: "abc", Mode: modeGlobal},
			last:    syncState{Hash: "abc", Mode: modeGuild, GuildID: "123"},
			want:    syncPlan{Mode: modeGlobal, Register: true, ScanGuilds: true, ClearGuild: "123"},
		},
		{
			name:    "global to guild",
			current: syncState{Hash: "abc", Mode: modeGuild, GuildID: "123"},
			last:    syncState{Hash: "abc", Mode: modeGlobal},
			want:    syncPlan{Mode: modeGuild, Register: true, ClearGlobal: true},
		},
		{
			name:    "guild moved",
			current: syncState{Hash: "abc", Mode: modeGuild, GuildID: "456"},
			last:    syncState{Hash: "abc", Mode: modeGuild, GuildID: "123"},
			want:    syncPlan{Mode: modeGuild, Register: true, ClearGuild: "123"},
		},
		{
			name:    "forced guild",
			current: syncState{Hash: "abc", Mode: modeGuild, GuildID: "123"},
			last:    syncState{Hash: "abc", Mode: modeGuild, GuildID: "123"},
			force:   true,
			want:    syncPlan{Mode: modeGuild, Register: true, ClearGlobal: true, ScanGuilds: true},
		},
		{
			name:    "first run",
			current: syncState{Hash: "abc", Mode: modeGlobal},
			want:    syncPlan{Mode: modeGlobal, Register: true, ScanGuilds: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, planSync(tt.current, tt.last, tt.force))
		})
	}
}

func TestCommandHashStable(t *testing.T) {
	cmds := []discord.ApplicationCommandCreate{discord.SlashCommandCreate{Name: "help", Description: "Help"}}
	assert.Equal(t, CommandHash(cmds), CommandHash(cmds))
	assert.Len(t, CommandHash(cmds), 64)

	other := []discord.ApplicationCommandCreate{discord.SlashCommandCreate{Name: "help", Description: "Other"}}
	assert.NotEqual(t, CommandHash(cmds), CommandHash(other))
}

type fakePermissionCache struct {
	guild discord.Guild
	roles map[snowflake.ID]discord.Role
}

func (f fakePermissionCache) Guild(id snowflake.ID) (discord.Guild, bool) {
	return f.guild, id == f.guild.ID
}

func (f fakePermissionCache) Role(_ snowflake.ID, roleID snowflake.ID) (discord.Role, bool) {
	r, ok := f.roles[roleID]
	return r, ok
}

func TestMemberPermissions(t *testing.T) {
	const modRole snowflake.ID = 77
	cache := fakePermissionCache{
		guild: discord.Guild{ID: testGuildID, OwnerID: testOwnerID},
		roles: map[snowflake.ID]discord.Role{
			testGuildID: {ID: testGuildID, Permissions: discord.PermissionViewChannel | discord.PermissionSendMessages},
			modRole:     {ID: modRole, Permissions: discord.PermissionManageMessages},
		},
	}
	member := func(id snowflake.ID, roles ...snowflake.ID) discord.Member {
		return discord.Member{User: discord.User{ID: id}, RoleIDs: roles}
	}

	tests := []struct {
		name       string
		member     discord.Member
		overwrites []discord.PermissionOverwrite
		has        []discord.Permissions
		lacks      []discord.Permissions
	}{
		{
			name:   "owner",
			member: member(testOwnerID),
			has:    []discord.Permissions{discord.PermissionAdministrator},
		},
		{
			name:   "everyone only",
			member: member(testUserID),
			has:    []discord.Permissions{discord.PermissionSendMessages},
			lacks:  []discord.Permissions{discord.PermissionManageMessages},
		},
		{
			name:   "role grants",
			member: member(testUserID, modRole),
			has:    []discord.Permissions{discord.PermissionManageMessages},
		},
		{
			name:   "everyone overwrite denies",
			member: member(testUserID),
			overwrites: []discord.PermissionOverwrite{
				discord.RolePermissionOverwrite{RoleID: testGuildID, Deny: discord.PermissionSendMessages},
			},
			lacks: []discord.Permissions{discord.PermissionSendMessages},
		},
		{
			name:   "member overwrite wins",
			member: member(testUserID),
			overwrites: []discord.PermissionOverwrite{
				discord.RolePermissionOverwrite{RoleID: testGuildID, Deny: discord.PermissionSendMessages},
				discord.MemberPermissionOverwrite{UserID: testUserID, Allow: discord.PermissionSendMessages},
			},
			has: []discord.Permissions{discord.PermissionSendMessages},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms := MemberPermissions(cache, testGuildID, tt.member, tt.overwrites)
			for _, p := range tt.has {
				assert.True(t, perms.Has(p))
			}
			for _, p := range tt.lacks {
				assert.False(t, perms.Has(p))
			}
		})
	}

	assert.Zero(t, MemberPermissions(cache, 1, member(testUserID), nil))
}

func TestBuildGuildInfo(t *testing.T) {
	g := discord.Guild{ID: testGuildID, Name: "Home", OwnerID: testOwnerID}
	members := []discord.Member{
		{User: discord.User{ID: testOwnerID}},
		{User: discord.User{ID: testSelfID, Bot: true}},
	}

	info := buildGuildInfo(g, members, 3, "owner", true)
	assert.Equal(t, "Home", info.Name)
	assert.Equal(t, 2, info.MemberCount)
	assert.Equal(t, 3, info.ChannelCount)
	assert.True(t, info.BotIsAdmin)
	require.Len(t, info.Members, 2)
	assert.True(t, info.Members[1].Bot)
}

func TestDMFromMessage(t *testing.T) {
	contentType := "image/png"
	m := discord.Message{
		Content: "look",
		Author:  discord.User{ID: testUserID, Username: "tester"},
		Attachments: []discord.Attachment{
			{Filename: "cat.png", URL: "https://cdn.example/cat.png", ContentType: &contentType},
		},
	}

	dm := dmFromMessage(m)
	assert.Equal(t, "tester", dm.AuthorName)
	assert.Equal(t, testUserID.String(), dm.AuthorID)
	require.Len(t, dm.Attachments, 1)
	assert.Equal(t, "image/png", dm.Attachments[0].ContentType)
	assert.Equal(t, "cat.png", dm.Attachments[0].Filename)
}

func TestHealthz(t *testing.T) {
	b, _ := newTestBot(t, nil)
	noop := func(*Context) error { return nil }
	require.NoError(t, b.Registry.AddCommand(Command{Create: discord.SlashCommandCreate{Name: "help"}, Handler: noop}))

	rec := httptest.NewRecorder()
	b.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var report healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, 1, report.Commands)
	assert.Empty(t, report.Workers)
}

func TestOnErrorLogsEvent(t *testing.T) {
	b, _ := newTestBot(t, nil)
	b.recoverEvent("on_message", func() { panic("kaboom") })

	records := b.Hub.RecentOfType(logger.TypeError)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Message, "event=on_message")
	assert.Contains(t, records[0].Message, "kaboom")
}

type fakeConfigStore struct {
	values  map[string]string
	readErr map[string]error
	saveErr error
	saved   []string
}

func (f *fakeConfigStore) GetBotConfig(_ context.Context, key string) (string, error) {
	if err := f.readErr[key]; err != nil {
		return "", err
	}
	return f.values[key], nil
}

func (f *fakeConfigStore) SetBotConfig(_ context.Context, key, value string) error {
	f.saved = append(f.saved, key)
	if f.saveErr != nil {
		return f.saveErr
	}
	f.values[key] = value
	return nil
}

func TestLoadSyncStateSkipsUnreadableKeys(t *testing.T) {
	b, _ := newTestBot(t, nil)
	b.Store = &fakeConfigStore{
		values: map[string]string{
			store.KeyLastCommandHash: "abc",
			store.KeyLastRegMode:     modeGuild,
			store.KeyLastGuildID:     "42",
		},
		readErr: map[string]error{store.KeyLastRegMode: errors.New("no such table: bot_config")},
	}

	last := b.loadSyncState(context.Background())

	assert.Equal(t, syncState{Hash: "abc", GuildID: "42"}, last)
}

func TestSaveSyncStateTriesEveryKey(t *testing.T) {
	b, _ := newTestBot(t, nil)
	cs := &fakeConfigStore{values: map[string]string{}, saveErr: errors.New("database is locked")}
	b.Store = cs

	b.saveSyncState(context.Background(), syncState{Hash: "abc", Mode: modeGlobal})

	assert.ElementsMatch(t, []string{store.KeyLastRegMode, store.KeyLastGuildID, store.KeyLastCommandHash}, cs.saved)
}

func TestBotIDFromToken(t *testing.T) {
	encoded := base64.RawStdEncoding.EncodeToString([]byte("123456789012345678"))

	tests := []struct {
		name    string
		token   string
		want    snowflake.ID
		wantErr bool
	}{
		{"plain", encoded + ".GhIjKl.secret", 123456789012345678, false},
		{"with prefix", "Bot " + encoded + ".GhIjKl.secret", 123456789012345678, false},
		{"padded", base64.StdEncoding.EncodeToString([]byte("1234567")) + ".x.y", 1234567, false},
		{"empty", "", 0, true},
		{"not base64", "!!!.x.y", 0, true},
		{"not a snowflake", base64.RawStdEncoding.EncodeToString([]byte("bot")) + ".x.y", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := botIDFromToken(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, errMalformedToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestOnReadyTracksSelfID(t *testing.T) {
	b, sender := newTestBot(t, nil)
	const userID snowflake.ID = 9000

	b.onReady(&events.Ready{EventReady: gateway.EventReady{
		User: discord.OAuth2User{User: discord.User{ID: userID, Username: "singularity"}},
	}})
	assert.Equal(t, userID, b.SelfID())

	// A DM from the logged in user is the bot's own message.
	require.NoError(t, b.handleMessage(context.Background(), discord.Message{Author: discord.User{ID: userID}}, nil))
	assert.Empty(t, sender.sent)

	records := b.Hub.RecentOfType(logger.TypeInfo)
	require.NotEmpty(t, records)
	assert.Equal(t, MsgBotUp, records[0].Message)
}

type failingInteraction struct{ fakeInteraction }

func (f *failingInteraction) CreateMessage(discord.MessageCreate) error { return errors.New("unknown interaction") }
func (f *failingInteraction) CreateFollowup(discord.MessageCreate) error { return errors.New("unknown webhook") }
func (f *failingInteraction) SendToChannel(discord.MessageCreate) error { return errors.New("missing access") }

func TestValidateLogsUndeliverableRefusal(t *testing.T) {
	b, _ := newTestBot(t, nil)
	c := b.newContext(context.Background(), &failingInteraction{})
	c.User = discord.User{ID: testUserID}
	c.CommandName = "workers"

	assert.False(t, c.Validate(true))

	records := b.Hub.RecentOfType(logger.TypeError)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Message, "Could not tell user why `workers` was refused")
	assert.Contains(t, records[0].Message, "missing access")
}

func TestCloseDeliversShutdownLog(t *testing.T) {
	b, sender := newTestBot(t, nil)
	b.Hub.SetRemote(logger.NewRemoteSink(sender, testChanID))

	b.Close(context.Background())

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 1)
	require.Len(t, sender.sent[0].Embeds, 1)
	assert.Equal(t, MsgBotShutdown, sender.sent[0].Embeds[0].Description)
}
