package transport

import "github.com/google/uuid"

type UpdateSettingsRequest struct {
	Timezone     *string `json:"timezone" validate:"omitempty,iana_tz"`
	ContactEmail *string `json:"contactEmail" validate:"omitempty,email,max=254"`
}

type SettingsResponse struct {
	ID                uuid.UUID `json:"id"`
	Slug              string    `json:"slug"`
	Name              string    `json:"name"`
	Timezone          *string   `json:"timezone"`
	EffectiveTimezone string    `json:"effectiveTimezone"`
	ContactEmail      *string   `json:"contactEmail"`
	SupportedZones    []string  `json:"supportedTimezones"`
}
