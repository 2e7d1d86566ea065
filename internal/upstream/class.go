package upstream

// EndpointClass names a family of upstream endpoints that shares a quota
// cost and a cache lifetime.
type EndpointClass string

const (
	ClassSearch   EndpointClass = "search"
	ClassVideo    EndpointClass = "video"
	ClassChannel  EndpointClass = "channel"
	ClassPlaylist EndpointClass = "playlist"
	ClassTrending EndpointClass = "trending"
)

// Classes lists every endpoint class, in the order the API surface
// exposes them.
func Classes() []EndpointClass {
	return []EndpointClass{ClassSearch, ClassVideo, ClassChannel, ClassPlaylist, ClassTrending}
}

// Valid reports whether the class is one of the known families.
func (c EndpointClass) Valid() bool {
	switch c {
	case ClassSearch, ClassVideo, ClassChannel, ClassPlaylist, ClassTrending:
		return true
	}
	return false
}

// Cost is the number of quota units one call against this class consumes.
func (c EndpointClass) Cost() int64 {
	return 1
}

// path maps a class to the upstream resource it proxies.
func (c EndpointClass) path() string {
	switch c {
	case ClassSearch:
		return "/search"
	case ClassVideo:
		return "/videos"
	case ClassChannel:
		return "/channels"
	case ClassPlaylist:
		return "/playlists"
	case ClassTrending:
		// Trending is the videos resource with chart=mostPopular; the
		// client pins the chart parameter.
		return "/videos"
	}
	return ""
}
