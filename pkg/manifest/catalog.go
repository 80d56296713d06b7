package manifest

// Default returns the built-in element catalog.
//
// The catalog is constructed fresh on every call so callers can never mutate
// shared state through it; consumers are expected to build it once at startup
// and pass the registry by reference.
func Default() *Registry {
	return MustNewRegistry(defaultCatalog()...)
}

func defaultCatalog() []*ElementManifest {
	return []*ElementManifest{
		{
			ElementID:  "poll-element",
			Aliases:    []string{"poll", "quick-poll"},
			Tier:       TierUniversal,
			Category:   CategoryInput,
			DataSource: DataSourceNone,
			RequiredConfig: map[string]ConfigField{
				"question": {
					Type:        FieldTypeString,
					Description: "The question presented above the options",
				},
				"options": {
					Type:        FieldTypeStringList,
					Description: "Choices a voter can pick from (2 or more)",
				},
			},
			OptionalConfig: map[string]ConfigField{
				"allowMultiple": {
					Type:        FieldTypeBoolean,
					Description: "Allow selecting more than one option",
					Default:     false,
				},
			},
			ExecuteActions: []string{"vote", "retract-vote"},
			StateShape: StateShape{
				Shared:   []string{"results"},
				Personal: []string{"myVote"},
			},
			CanBeStandalone: true,
		},
		{
			ElementID:  "countdown-timer",
			Aliases:    []string{"countdown"},
			Tier:       TierUniversal,
			Category:   CategoryDisplay,
			DataSource: DataSourceNone,
			RequiredConfig: map[string]ConfigField{
				"targetDate": {
					Type:        FieldTypeString,
					Description: "RFC3339 timestamp the timer counts down to",
				},
			},
			OptionalConfig: map[string]ConfigField{
				"label": {
					Type:        FieldTypeString,
					Description: "Caption shown under the timer",
					Default:     "Time remaining",
				},
			},
			CanBeStandalone: true,
		},
		{
			ElementID:  "announcement-banner",
			Aliases:    []string{"announcement"},
			Tier:       TierSpace,
			Category:   CategoryDisplay,
			DataSource: DataSourceNone,
			RequiredConfig: map[string]ConfigField{
				"message": {
					Type:        FieldTypeString,
					Description: "Banner text shown to every member",
				},
			},
			OptionalConfig: map[string]ConfigField{
				"style": {
					Type:        FieldTypeString,
					Description: "Visual style: info, warning or celebration",
					Default:     "info",
				},
			},
			ConnectionRequirements: &ConnectionRequirements{
				ConnectionType:      "space",
				RequiredContextKeys: []string{"spaceId"},
			},
			CanBeStandalone: true,
		},
		{
			ElementID:  "event-list",
			Aliases:    []string{"events", "upcoming-events"},
			Tier:       TierConnected,
			Category:   CategoryDisplay,
			DataSource: DataSourceEvents,
			OptionalConfig: map[string]ConfigField{
				"limit": {
					Type:        FieldTypeNumber,
					Description: "Maximum number of events to show",
					Default:     10,
				},
				"categories": {
					Type:        FieldTypeStringListOrString,
					Description: "Restrict to one or more event categories",
				},
			},
			ConnectionRequirements: &ConnectionRequirements{
				ConnectionType:      "campus",
				RequiredContextKeys: []string{"campusId"},
			},
			CanBeStandalone: true,
		},
		{
			ElementID:  "rsvp-button",
			Aliases:    []string{"rsvp"},
			Tier:       TierConnected,
			Category:   CategoryAction,
			DataSource: DataSourceEvents,
			RequiredConfig: map[string]ConfigField{
				"eventId": {
					Type:        FieldTypeString,
					Description: "Event the button RSVPs to",
				},
			},
			ConnectionRequirements: &ConnectionRequirements{
				ConnectionType:      "campus",
				RequiredContextKeys: []string{"campusId", "userId"},
			},
			ExecuteActions: []string{"rsvp", "cancel-rsvp"},
			StateShape: StateShape{
				Shared:   []string{"attendees"},
				Personal: []string{"myRsvp"},
			},
			// Meaningless without an event-list or event page around it.
			CanBeStandalone: false,
		},
		{
			ElementID:  "member-directory",
			Aliases:    []string{"members"},
			Tier:       TierSpace,
			Category:   CategoryDisplay,
			DataSource: DataSourceMembers,
			OptionalConfig: map[string]ConfigField{
				"roles": {
					Type:        FieldTypeStringList,
					Description: "Restrict the directory to these roles",
				},
				"limit": {
					Type:        FieldTypeNumber,
					Description: "Maximum number of members to show",
					Default:     25,
				},
			},
			ConnectionRequirements: &ConnectionRequirements{
				ConnectionType:      "space",
				RequiredContextKeys: []string{"spaceId"},
			},
			CanBeStandalone: true,
		},
		{
			ElementID:  "leaderboard",
			Tier:       TierConnected,
			Category:   CategoryDisplay,
			DataSource: DataSourceMembers,
			RequiredConfig: map[string]ConfigField{
				"metric": {
					Type:        FieldTypeString,
					Description: "Which score the board ranks by",
				},
			},
			ConnectionRequirements: &ConnectionRequirements{
				ConnectionType:      "campus",
				RequiredContextKeys: []string{"campusId"},
			},
			StateShape: StateShape{
				Shared: []string{"scores"},
			},
			CanBeStandalone: true,
		},
		{
			ElementID:  "date-range-filter",
			Aliases:    []string{"date-filter"},
			Tier:       TierUniversal,
			Category:   CategoryFilter,
			DataSource: DataSourceNone,
			OptionalConfig: map[string]ConfigField{
				"presets": {
					Type:        FieldTypeObjectList,
					Description: "Named ranges offered as one-click presets",
				},
			},
			StateShape: StateShape{
				Shared: []string{"range"},
			},
			// Filters only exist to feed a connected list.
			CanBeStandalone: false,
		},
		{
			ElementID:  "text-prompt",
			Aliases:    []string{"prompt"},
			Tier:       TierUniversal,
			Category:   CategoryInput,
			DataSource: DataSourceNone,
			RequiredConfig: map[string]ConfigField{
				"placeholder": {
					Type:        FieldTypeString,
					Description: "Hint text shown in the empty field",
					Default:     "Type here...",
				},
			},
			StateShape: StateShape{
				Personal: []string{"draft"},
			},
			CanBeStandalone: false,
		},
		{
			ElementID:  "section-layout",
			Aliases:    []string{"section"},
			Tier:       TierUniversal,
			Category:   CategoryLayout,
			DataSource: DataSourceNone,
			OptionalConfig: map[string]ConfigField{
				"columns": {
					Type:        FieldTypeNumber,
					Description: "Number of columns children flow into",
					Default:     2,
				},
				"title": {
					Type:        FieldTypeString,
					Description: "Heading rendered above the section",
				},
			},
			CanBeStandalone: true,
		},
		{
			ElementID:  "post-feed",
			Aliases:    []string{"feed"},
			Tier:       TierSpace,
			Category:   CategoryDisplay,
			DataSource: DataSourcePosts,
			OptionalConfig: map[string]ConfigField{
				"limit": {
					Type:        FieldTypeNumber,
					Description: "Maximum number of posts to show",
					Default:     20,
				},
			},
			ConnectionRequirements: &ConnectionRequirements{
				ConnectionType:      "space",
				RequiredContextKeys: []string{"spaceId"},
			},
			ExecuteActions: []string{"create-post"},
			CanBeStandalone: true,
		},
	}
}
