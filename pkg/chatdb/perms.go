package chatdb

import "github.com/google/uuid"

// Permission nodes checked by the core.
const (
	PermFormatPrefix       = "format."
	PermRegexBypass        = "jadedcore.bypass.regexfilter"
	PermRepeatBypass       = "jadedcore.bypass.repeatfilter"
	PermFilterView         = "jadedchat.filter.view"
	PermMessageColors      = "jadedchat.message.colors"
	PermMessageDecorations = "jadedchat.message.decorations"
	PermMessageEvents      = "jadedchat.message.events"
	PermSocialSpy          = "jadedchat.socialspy"
)

// PermissionOracle answers permission queries for connected participants.
type PermissionOracle interface {
	Has(id uuid.UUID, node string) bool
}

// PermissionFunc adapts a function to PermissionOracle.
type PermissionFunc func(id uuid.UUID, node string) bool

func (f PermissionFunc) Has(id uuid.UUID, node string) bool { return f(id, node) }

// Roster is the host's view of locally connected participants. Positions and
// permissions it reports are only safe to read on the main loop.
type Roster interface {
	Online() []Participant
	Lookup(id uuid.UUID) (Participant, bool)
	LookupName(name string) (Participant, bool)
}
