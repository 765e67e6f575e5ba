// Package metrics provides per-invocation counters.
//
// The Collector accumulates counters during a single CLI invocation or
// broker lifetime. It is a leaf package with no internal dependencies.
// Snapshots are written into the fetch ledger alongside each record.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Fetch lifecycle
	FetchesStarted   int64 `json:"fetches_started"`
	FetchesCompleted int64 `json:"fetches_completed"`
	FetchesNotFound  int64 `json:"fetches_not_found"`
	FetchesFailed    int64 `json:"fetches_failed"`

	// Credentials and login
	CredentialHits  int64 `json:"credential_hits"`
	LoginsStarted   int64 `json:"logins_started"`
	LoginsSucceeded int64 `json:"logins_succeeded"`
	LoginsFailed    int64 `json:"logins_failed"`
	LoginsCanceled  int64 `json:"logins_canceled"`

	// Download and assembly
	FragmentsDownloaded int64 `json:"fragments_downloaded"`
	BytesDownloaded     int64 `json:"bytes_downloaded"`
	Merges              int64 `json:"merges"`

	// Broker transport
	BrokerRequests  int64 `json:"broker_requests"`
	IPCDecodeErrors int64 `json:"ipc_decode_errors"`

	// Ledger
	LedgerWriteSuccess int64 `json:"ledger_write_success"`
	LedgerWriteFailure int64 `json:"ledger_write_failure"`

	// ErrorsByClass counts failures by error class (auth, interaction, ...).
	ErrorsByClass map[string]int64 `json:"errors_by_class,omitempty"`

	// Dimensions (informational, set at construction)
	CredentialBackend string `json:"credential_backend"`
	StorageBackend    string `json:"storage_backend"`
	InvocationID      string `json:"invocation_id"`
}

// Collector accumulates counters.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	fetchesStarted   int64
	fetchesCompleted int64
	fetchesNotFound  int64
	fetchesFailed    int64

	credentialHits  int64
	loginsStarted   int64
	loginsSucceeded int64
	loginsFailed    int64
	loginsCanceled  int64

	fragmentsDownloaded int64
	bytesDownloaded     int64
	merges              int64

	brokerRequests  int64
	ipcDecodeErrors int64

	ledgerWriteSuccess int64
	ledgerWriteFailure int64

	errorsByClass map[string]int64

	credentialBackend string
	storageBackend    string
	invocationID      string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(credentialBackend, storageBackend, invocationID string) *Collector {
	return &Collector{
		errorsByClass:     make(map[string]int64),
		credentialBackend: credentialBackend,
		storageBackend:    storageBackend,
		invocationID:      invocationID,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Fetch lifecycle ---

// IncFetchStarted records a fetch start.
func (c *Collector) IncFetchStarted() {
	if c == nil {
		return
	}
	c.add(&c.fetchesStarted, 1)
}

// IncFetchCompleted records a fetch that wrote its artifact.
func (c *Collector) IncFetchCompleted() {
	if c == nil {
		return
	}
	c.add(&c.fetchesCompleted, 1)
}

// IncFetchNotFound records a fetch that resolved to no package.
func (c *Collector) IncFetchNotFound() {
	if c == nil {
		return
	}
	c.add(&c.fetchesNotFound, 1)
}

// IncFetchFailed records a failed fetch under its error class.
func (c *Collector) IncFetchFailed(class string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fetchesFailed++
	if class != "" {
		c.errorsByClass[class]++
	}
	c.mu.Unlock()
}

// --- Credentials and login ---

// IncCredentialHit records a credential served from the store.
func (c *Collector) IncCredentialHit() {
	if c == nil {
		return
	}
	c.add(&c.credentialHits, 1)
}

// IncLoginStarted records an interactive login launch.
func (c *Collector) IncLoginStarted() {
	if c == nil {
		return
	}
	c.add(&c.loginsStarted, 1)
}

// IncLoginSucceeded records a login that persisted a credential.
func (c *Collector) IncLoginSucceeded() {
	if c == nil {
		return
	}
	c.add(&c.loginsSucceeded, 1)
}

// IncLoginFailed records a login that ended in failure.
func (c *Collector) IncLoginFailed() {
	if c == nil {
		return
	}
	c.add(&c.loginsFailed, 1)
}

// IncLoginCanceled records a login dismissed before completion.
func (c *Collector) IncLoginCanceled() {
	if c == nil {
		return
	}
	c.add(&c.loginsCanceled, 1)
}

// --- Download and assembly ---

// IncFragmentDownloaded records one fully downloaded fragment.
func (c *Collector) IncFragmentDownloaded() {
	if c == nil {
		return
	}
	c.add(&c.fragmentsDownloaded, 1)
}

// AddBytesDownloaded records transferred bytes.
func (c *Collector) AddBytesDownloaded(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.add(&c.bytesDownloaded, n)
}

// IncMerge records a multi-fragment merge.
func (c *Collector) IncMerge() {
	if c == nil {
		return
	}
	c.add(&c.merges, 1)
}

// --- Broker transport ---

// IncBrokerRequest records a request served by the broker.
func (c *Collector) IncBrokerRequest() {
	if c == nil {
		return
	}
	c.add(&c.brokerRequests, 1)
}

// IncIPCDecodeErrors records a frame decode error.
func (c *Collector) IncIPCDecodeErrors() {
	if c == nil {
		return
	}
	c.add(&c.ipcDecodeErrors, 1)
}

// --- Ledger ---
// Ledger counters are per-call. One record write plus its optional
// artifact copy count as a single operation.

// IncLedgerWriteSuccess records a successful ledger write.
func (c *Collector) IncLedgerWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.ledgerWriteSuccess, 1)
}

// IncLedgerWriteFailure records a failed ledger write.
func (c *Collector) IncLedgerWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.ledgerWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byClass := make(map[string]int64, len(c.errorsByClass))
	for k, v := range c.errorsByClass {
		byClass[k] = v
	}

	return Snapshot{
		FetchesStarted:   c.fetchesStarted,
		FetchesCompleted: c.fetchesCompleted,
		FetchesNotFound:  c.fetchesNotFound,
		FetchesFailed:    c.fetchesFailed,

		CredentialHits:  c.credentialHits,
		LoginsStarted:   c.loginsStarted,
		LoginsSucceeded: c.loginsSucceeded,
		LoginsFailed:    c.loginsFailed,
		LoginsCanceled:  c.loginsCanceled,

		FragmentsDownloaded: c.fragmentsDownloaded,
		BytesDownloaded:     c.bytesDownloaded,
		Merges:              c.merges,

		BrokerRequests:  c.brokerRequests,
		IPCDecodeErrors: c.ipcDecodeErrors,

		LedgerWriteSuccess: c.ledgerWriteSuccess,
		LedgerWriteFailure: c.ledgerWriteFailure,

		ErrorsByClass: byClass,

		CredentialBackend: c.credentialBackend,
		StorageBackend:    c.storageBackend,
		InvocationID:      c.invocationID,
	}
}
