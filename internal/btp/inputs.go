package btp

import (
	"time"

	"github.com/runnerr0/bounceguard/internal/model"
)

// HopEvent is a committed top-level navigation. A user-activated hop starts
// a new extended navigation; any other hop extends the open one.
type HopEvent struct {
	Attrs             model.OriginAttributes `json:"partition"`
	BrowsingContextID uint64                 `json:"browsing_context_id"`
	// Host is a URL or hostname; it is reduced to its site host.
	Host          string        `json:"host"`
	Type          model.HopType `json:"hop_type"`
	At            time.Time     `json:"at"`
	UserActivated bool          `json:"user_activated"`
}

// StateWriteEvent reports a storage write. Writes from sub-frames carry the
// sub-frame's host.
type StateWriteEvent struct {
	Attrs         model.OriginAttributes `json:"partition"`
	Host          string                 `json:"host"`
	Kind          model.WriteKind        `json:"kind"`
	At            time.Time              `json:"at"`
	InIframe      bool                   `json:"in_iframe"`
	SameSiteToTop bool                   `json:"same_site_to_top"`
}

// InteractionEvent reports genuine user interaction with the page shown in
// a browsing context.
type InteractionEvent struct {
	Attrs             model.OriginAttributes `json:"partition"`
	BrowsingContextID uint64                 `json:"browsing_context_id"`
	At                time.Time              `json:"at"`
}

// ContextDestroyedEvent reports that a browsing context (tab) closed.
type ContextDestroyedEvent struct {
	Attrs             model.OriginAttributes `json:"partition"`
	BrowsingContextID uint64                 `json:"browsing_context_id"`
	At                time.Time              `json:"at"`
}

// Queue items consumed by a partition actor.
type (
	hopItem struct {
		bcID          uint64
		host          model.Host
		hopType       model.HopType
		at            time.Time
		userActivated bool
	}
	writeItem struct {
		host          model.Host
		kind          model.WriteKind
		at            time.Time
		inIframe      bool
		sameSiteToTop bool
	}
	interactionItem struct {
		bcID uint64
		at   time.Time
	}
	destroyItem struct {
		bcID uint64
		at   time.Time
	}
	tickItem struct {
		now time.Time
	}
	resetItem struct{}
	// callItem runs fn on the actor goroutine and reports its error.
	callItem struct {
		fn   func() error
		done chan error
	}
)
