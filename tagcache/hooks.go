package tagcache

// Hooks are callbacks for high-signal cache events.
// Implementations MUST be cheap and non-blocking; they run on the read path.
type Hooks interface {
	// An entry was deleted on read.
	// reason ∈ {"corrupt", "expired", "gen_mismatch", "tag_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// A provider call failed; op ∈ {"get", "set", "del"}. The read fell back to compute.
	ProviderError(op string, err error)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore errors. count is the number of tags involved.
	GenSnapshotError(count int, err error)
	GenBumpError(tag string, err error)

	// A computed value was not stored because one of its tags was invalidated
	// while it was being computed.
	StaleWriteSkipped(storageKey string)

	// A shared provider is paired with an in-process GenStore; invalidations
	// on one replica are invisible to the others.
	LocalGenWithSharedProvider()
}

// NopHooks is the default.
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)     {}
func (NopHooks) ProviderError(string, error) {}
func (NopHooks) ProviderSetRejected(string)  {}
func (NopHooks) GenSnapshotError(int, error) {}
func (NopHooks) GenBumpError(string, error)  {}
func (NopHooks) StaleWriteSkipped(string)    {}
func (NopHooks) LocalGenWithSharedProvider() {}
