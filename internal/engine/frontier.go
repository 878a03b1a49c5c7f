package engine

// Frontier is the FIFO queue of URLs awaiting a fetch within one run.
// A URL already queued is not queued again. It is owned by a single run
// and is not safe for concurrent use.
type Frontier struct {
	queue  []string
	queued map[string]struct{}
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{queued: make(map[string]struct{})}
}

// Push appends url unless its canonical form is already queued. It reports
// whether the URL was added.
func (f *Frontier) Push(url string) bool {
	key := CanonicalizeURL(url)
	if _, ok := f.queued[key]; ok {
		return false
	}
	f.queued[key] = struct{}{}
	f.queue = append(f.queue, url)
	return true
}

// Pop removes and returns the oldest URL. ok is false when empty.
func (f *Frontier) Pop() (url string, ok bool) {
	if len(f.queue) == 0 {
		return "", false
	}
	url = f.queue[0]
	f.queue[0] = ""
	f.queue = f.queue[1:]
	delete(f.queued, CanonicalizeURL(url))
	return url, true
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	return len(f.queue)
}
