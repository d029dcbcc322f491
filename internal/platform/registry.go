package platform

// Registry holds the adapter for each supported platform, selected by the
// target account's platform name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register(NewFacebookAdapter())
	r.Register(NewInstagramAdapter())
	r.Register(NewLinkedInAdapter())
	r.Register(NewTikTokAdapter())
	r.Register(NewTwitterAdapter())
	r.Register(NewYouTubeAdapter())
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Platform()] = a
}

func (r *Registry) Get(platform string) (Adapter, bool) {
	a, ok := r.adapters[platform]
	return a, ok
}
