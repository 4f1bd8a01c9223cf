package subscription

// Sometimes is an optional field: Valid is true when the caller's payload
// included this field at all. This replaces the source's "update only the
// fields present in the keyword-argument dict" idiom (SPEC_FULL.md §9
// "dynamic keyword arguments on update").
type Sometimes[T any] struct {
	Value T
	Valid bool
}

// Set returns a populated Sometimes[T].
func Set[T any](v T) Sometimes[T] {
	return Sometimes[T]{Value: v, Valid: true}
}

// Patch carries only the fields a PUT /api/subscriptions/{username} request
// actually supplied; Apply merges only the Valid ones.
type Patch struct {
	Enabled        Sometimes[bool]
	LimitUsage     Sometimes[int64]
	LimitExpire    Sometimes[int64]
	AutoDeleteDays Sometimes[int]
	Note           Sometimes[string]
	ServiceIDs     Sometimes[[]int64]
	TelegramID     Sometimes[string]
	DiscordWebhookURL Sometimes[string]
}

// Apply merges the patch's populated fields into the subscription in place.
func (p Patch) Apply(s *Subscription) {
	if p.Enabled.Valid {
		s.enabled = p.Enabled.Value
	}
	if p.LimitUsage.Valid {
		s.limitUsage = p.LimitUsage.Value
	}
	if p.LimitExpire.Valid {
		s.limitExpire = p.LimitExpire.Value
	}
	if p.AutoDeleteDays.Valid {
		s.autoDeleteDays = p.AutoDeleteDays.Value
	}
	if p.Note.Valid {
		s.note = p.Note.Value
	}
	if p.ServiceIDs.Valid {
		s.serviceIDs = p.ServiceIDs.Value
	}
	if p.TelegramID.Valid {
		s.telegramID = p.TelegramID.Value
	}
	if p.DiscordWebhookURL.Valid {
		s.discordWebhookURL = p.DiscordWebhookURL.Value
	}
}
