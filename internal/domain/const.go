package domain

import "time"

// Context keys populated by the auth middleware.
const (
	RequesterDidCtxKey = "aviary-requesterDid"
	RequesterAudCtxKey = "aviary-requesterAud"
	RequesterLxmCtxKey = "aviary-requesterLxm"
)

// Durable config store keys.
const (
	ConfigKeyCursor          = "cursor"
	ConfigKeyMaxPostsPerFeed = "maxPostsPerFeed"
	ConfigKeyPruneInterval   = "pruneInterval"

	ConfigKeyServiceDid      = "serviceDid"
	ConfigKeyPublisherDid    = "publisherDid"
	ConfigKeyServiceEndpoint = "serviceEndpoint"
	ConfigKeyPlcDirectory    = "plcDirectory"
	ConfigKeyFeedRkey        = "feedRkey"
)

const (
	CheckpointInterval   = 5 * time.Second
	DefaultPruneInterval = time.Hour
	DefaultFeedRkey      = "home"

	// DefaultPageLimit is both the default and the maximum feed page size.
	DefaultPageLimit = 100
)
