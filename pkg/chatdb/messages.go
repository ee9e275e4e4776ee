package chatdb

// MessageKey names a user-visible message template in messages.yml.
type MessageKey string

const (
	MsgChannelDoesNotExist  MessageKey = "Channel.DoesNotExist"
	MsgChannelNoPermission  MessageKey = "Channel.NoPermission"
	MsgChannelNotInChannel  MessageKey = "Channel.NotInChannel"
	MsgChannelSwitch        MessageKey = "Channel.Switch"
	MsgChannelUsage         MessageKey = "Channel.Usage"
	MsgMessageUsage         MessageKey = "Message.Usage"
	MsgMessageNotOnline     MessageKey = "Message.NotOnline"
	MsgMessageSelf          MessageKey = "Message.Self"
	MsgReplyUsage           MessageKey = "Reply.Usage"
	MsgReplyNotOnline       MessageKey = "Reply.NotOnline"
	MsgNoPermission         MessageKey = "JadedChat.NoPermission"
	MsgFilterRegex          MessageKey = "Filter.Regex"
	MsgFilterRepeatMessage  MessageKey = "Filter.RepeatMessage"
	MsgSocialSpyDisabled    MessageKey = "SocialSpy.Disabled"
	MsgSocialSpyEnabled     MessageKey = "SocialSpy.Enabled"
	MsgSocialSpyNoPermision MessageKey = "SocialSpy.NoPermission"
)

// DefaultMessages are used for any key messages.yml does not override.
var DefaultMessages = map[MessageKey]string{
	MsgChannelDoesNotExist:  "<red><bold>Error</bold> <dark_gray>» <red>That channel does not exist!",
	MsgChannelNoPermission:  "<red><bold>Error</bold> <dark_gray>» <red>You do not have access to that channel.",
	MsgChannelNotInChannel:  "<red><bold>Error</bold> <dark_gray>» <red>You are not currently in a channel!",
	MsgChannelSwitch:        "<green><bold>Chat</bold> <dark_gray>» <green>Channel set to <gray><channel><green>.",
	MsgChannelUsage:         "<red><bold>Usage</bold> <dark_gray>» <red>/chat [channel] <message>",
	MsgMessageUsage:         "<red><bold>Usage</bold> <dark_gray>» <red>/msg [player] [message]",
	MsgMessageNotOnline:     "<red><bold>Error</bold> <dark_gray>» <red>That player isn't online!",
	MsgMessageSelf:          "<red><bold>Error</bold> <dark_gray>» <red>You cannot message yourself!",
	MsgReplyUsage:           "<red><bold>Usage</bold> <dark_gray>» <red>/r [message]",
	MsgReplyNotOnline:       "<red><bold>Error</bold> <dark_gray>» <red>You have no one to reply to!",
	MsgNoPermission:         "<red><bold>Error</bold> <dark_gray>» <red>You do not have access to that command.",
	MsgFilterRegex:          "<red><bold>Error</bold> <dark_gray>» <red>You cannot say that!",
	MsgFilterRepeatMessage:  "<red><bold>Error</bold> <dark_gray>» <red>You cannot say the same message twice!",
	MsgSocialSpyDisabled:    "<green><bold>Chat</bold> <dark_gray>» <green>You have disabled social spy.",
	MsgSocialSpyEnabled:     "<green><bold>Chat</bold> <dark_gray>» <green>You have enabled social spy.",
	MsgSocialSpyNoPermision: "<red><bold>Error</bold> <dark_gray>» <red>You do not have access to that command.",
}
