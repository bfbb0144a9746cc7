package core

import "time"

// Colors and defaults applied when a value is missing.
const (
	NeutralColor          = "hsl(0, 0%, 50%)"
	DefaultCollectionIcon = "folder"
	UnknownDomain         = "unknown"
)

// DefaultFaviconURL is the favicon service template; %s is the domain.
const DefaultFaviconURL = "https://www.google.com/s2/favicons?domain=%s&sz=128"

// Listing limits
const (
	DefaultSearchLimit = 50
	RecentLimit        = 20
	ViewRecentLimit    = 5
)

// DefaultPreviewDelay is how long the preview waits for typing to settle.
const DefaultPreviewDelay = 800 * time.Millisecond
