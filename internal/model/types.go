package model

import (
	"fmt"
	"strings"
	"time"
)

// Host is a registrable domain (eTLD+1). Bounce tracking classifies and
// purges at this granularity, never per origin.
type Host string

// HopType records how a navigation hop was reached.
type HopType int

const (
	HopClient HopType = iota
	HopServer
)

func (t HopType) String() string {
	switch t {
	case HopClient:
		return "client"
	case HopServer:
		return "server"
	default:
		return fmt.Sprintf("hop(%d)", int(t))
	}
}

// ParseHopType accepts "client" or "server".
func ParseHopType(s string) (HopType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client", "":
		return HopClient, nil
	case "server":
		return HopServer, nil
	default:
		return 0, fmt.Errorf("unknown hop type %q", s)
	}
}

// NavigationHop is one step of an extended navigation.
type NavigationHop struct {
	Host          Host
	Type          HopType
	Timestamp     time.Time
	IsInitialHost bool
}

// CloseReason records why an extended navigation ended.
type CloseReason int

const (
	CloseNone CloseReason = iota
	CloseTimeout
	CloseInteraction
	CloseContextDestroyed
	// CloseSuperseded means a new user-activated navigation started in the
	// same browsing context. It is handled like CloseContextDestroyed.
	CloseSuperseded
)

func (r CloseReason) String() string {
	switch r {
	case CloseNone:
		return "open"
	case CloseTimeout:
		return "timeout"
	case CloseInteraction:
		return "interaction"
	case CloseContextDestroyed:
		return "context_destroyed"
	case CloseSuperseded:
		return "superseded"
	default:
		return fmt.Sprintf("close(%d)", int(r))
	}
}

// ExtendedNavigation is a redirect chain that starts with a user-activated
// navigation. It lives only until it is classified.
type ExtendedNavigation struct {
	BrowsingContextID       uint64
	Hops                    []NavigationHop
	StartedByUserActivation bool
	EndedAt                 time.Time
	CloseReason             CloseReason
	InteractionAt           time.Time
}

// InitialHost returns the host of the first hop, or "" for an empty chain.
func (n *ExtendedNavigation) InitialHost() Host {
	if len(n.Hops) == 0 {
		return ""
	}
	return n.Hops[0].Host
}

// FinalHost returns the host of the last hop, or "" for an empty chain.
func (n *ExtendedNavigation) FinalHost() Host {
	if len(n.Hops) == 0 {
		return ""
	}
	return n.Hops[len(n.Hops)-1].Host
}

func (n *ExtendedNavigation) StartedAt() time.Time {
	if len(n.Hops) == 0 {
		return time.Time{}
	}
	return n.Hops[0].Timestamp
}

func (n *ExtendedNavigation) LastHopAt() time.Time {
	if len(n.Hops) == 0 {
		return time.Time{}
	}
	return n.Hops[len(n.Hops)-1].Timestamp
}

func (n *ExtendedNavigation) Closed() bool {
	return n.CloseReason != CloseNone
}

// WriteKind classifies a storage-setting operation.
type WriteKind int

const (
	WriteCookie WriteKind = iota
	WriteLocalStorage
	WriteSessionStorage
	WriteIndexedDB
	WriteCacheStorage
	WriteServiceWorker
	WriteOther
)

var writeKindNames = map[WriteKind]string{
	WriteCookie:         "cookie",
	WriteLocalStorage:   "local_storage",
	WriteSessionStorage: "session_storage",
	WriteIndexedDB:      "indexeddb",
	WriteCacheStorage:   "cache_storage",
	WriteServiceWorker:  "service_worker",
	WriteOther:          "other",
}

func (k WriteKind) String() string {
	if name, ok := writeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("write(%d)", int(k))
}

// ParseWriteKind maps a kind name back to a WriteKind.
func ParseWriteKind(s string) (WriteKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range writeKindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown write kind %q", s)
}

// HostRecord pairs a host with the time a record about it was made.
type HostRecord struct {
	Host      Host
	Timestamp time.Time
}

// PurgeLogEntry describes one completed purge.
type PurgeLogEntry struct {
	Host       Host
	BounceTime time.Time
	PurgeTime  time.Time
}
