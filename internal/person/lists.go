package person

import "github.com/pinpox/gossip/internal/store"

// AddToList adds pubkey to the given list slot (0=muted, 1=followed,
// 2-255 user-defined), marking the membership private or public.
func (r *Registry) AddToList(slot int, pubkey string, private bool) error {
	return r.st.AddToList(slot, pubkey, private)
}

// RemoveFromList removes pubkey from slot.
func (r *Registry) RemoveFromList(slot int, pubkey string) error {
	return r.st.RemoveFromList(slot, pubkey)
}

// ListMembers returns every pubkey currently in slot.
func (r *Registry) ListMembers(slot int) ([]string, error) {
	return r.st.ListMembers(slot)
}

// ListMembersDetailed returns every member of slot along with whether
// each is private, for building the slot's NIP-51 list event.
func (r *Registry) ListMembersDetailed(slot int) ([]store.ListEntry, error) {
	return r.st.ListMembersDetailed(slot)
}

// IsMuted reports whether pubkey is in the well-known muted slot.
func (r *Registry) IsMuted(pubkey string) (bool, error) {
	return r.st.IsListMember(store.MutedSlot, pubkey)
}

// IsFollowed reports whether pubkey is in the well-known followed slot.
func (r *Registry) IsFollowed(pubkey string) (bool, error) {
	return r.st.IsListMember(store.FollowedSlot, pubkey)
}

// Mute adds pubkey to the muted slot.
func (r *Registry) Mute(pubkey string) error { return r.AddToList(store.MutedSlot, pubkey, false) }

// Unmute removes pubkey from the muted slot.
func (r *Registry) Unmute(pubkey string) error { return r.RemoveFromList(store.MutedSlot, pubkey) }

// Follow adds pubkey to the followed slot.
func (r *Registry) Follow(pubkey string) error {
	return r.AddToList(store.FollowedSlot, pubkey, false)
}

// Unfollow removes pubkey from the followed slot.
func (r *Registry) Unfollow(pubkey string) error {
	return r.RemoveFromList(store.FollowedSlot, pubkey)
}

// Bookmarks returns the current bookmark list.
func (r *Registry) Bookmarks() ([]store.BookmarkEntry, error) {
	return r.st.Bookmarks()
}

// SetBookmarks replaces the whole bookmark list.
func (r *Registry) SetBookmarks(entries []store.BookmarkEntry) error {
	return r.st.SetBookmarks(entries)
}
