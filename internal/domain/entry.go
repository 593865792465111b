package domain

// Entry is a single archived forum post.
type Entry struct {
	// ID is the forum's own entry id (the data-id attribute on the page).
	ID string `json:"id"`

	Author string `json:"author"`

	// Content is the plain text of the post.
	Content string `json:"content"`

	// ContentHTML is the sanitized inner HTML of the post body.
	ContentHTML string `json:"contentHtml"`

	// Date is the display string rendered by the forum, kept verbatim.
	Date string `json:"date"`

	FavoriteCount int    `json:"favoriteCount"`
	AvatarURL     string `json:"avatarUrl"`

	// ArchivedAt is the moment the entry was captured, in Unix milliseconds.
	ArchivedAt int64 `json:"archivedAt"`

	TopicTitle string `json:"topicTitle,omitempty"`
	TopicURL   string `json:"topicUrl,omitempty"`
}
