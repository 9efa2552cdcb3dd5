package services

import "github.com/tbourn/pollcord/internal/domain"

// Preference is the channel set a recipient gets for one event.
type Preference string

// Preference values, as stored in advanced-mode user settings.
const (
	PreferenceMuted      Preference = "muted"
	PreferenceInApp      Preference = "in_app"
	PreferenceInAppEmail Preference = "in_app_email"
)

// InApp reports whether an in-app notification is written.
func (p Preference) InApp() bool { return p == PreferenceInApp || p == PreferenceInAppEmail }

// Email reports whether an email is sent.
func (p Preference) Email() bool { return p == PreferenceInAppEmail }

func (p Preference) valid() bool {
	switch p {
	case PreferenceMuted, PreferenceInApp, PreferenceInAppEmail:
		return true
	}
	return false
}

// ResolvePreference maps an event type and a user's settings to a channel
// set. In advanced mode an explicit, valid per-event choice wins; otherwise
// the event's default applies, with email only when the user's email toggle
// is on. In-app-only events never resolve to email. Unknown types are muted.
func ResolvePreference(eventType string, settings domain.UserSettings) Preference {
	spec, ok := LookupEvent(eventType)
	if !ok {
		return PreferenceMuted
	}

	pref := spec.Default
	explicit := false
	if settings.NotificationMode == domain.NotificationModeAdvanced {
		if p := Preference(settings.NotificationPreferences[eventType]); p.valid() {
			pref, explicit = p, true
		}
	}
	if !explicit && pref == PreferenceInAppEmail && !settings.EmailNotifications {
		pref = PreferenceInApp
	}
	if spec.InAppOnly && pref == PreferenceInAppEmail {
		pref = PreferenceInApp
	}
	return pref
}
