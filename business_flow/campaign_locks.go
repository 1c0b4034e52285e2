package businessflow

import "sync"

// Per-campaign ordinal allocation locks. The database compare-and-swap is the
// real arbiter; this keeps goroutines in one process from burning retries
// against each other under registration bursts.
var (
	campaignOrdinalMu    sync.Mutex
	campaignOrdinalLocks = make(map[uint]*sync.Mutex)
)

func lockCampaignOrdinal(campaignID uint) {
	campaignOrdinalMu.Lock()
	mu, ok := campaignOrdinalLocks[campaignID]
	if !ok {
		mu = &sync.Mutex{}
		campaignOrdinalLocks[campaignID] = mu
	}
	campaignOrdinalMu.Unlock()
	mu.Lock()
}

func unlockCampaignOrdinal(campaignID uint) {
	campaignOrdinalMu.Lock()
	mu, ok := campaignOrdinalLocks[campaignID]
	campaignOrdinalMu.Unlock()
	if ok {
		mu.Unlock()
	}
}
