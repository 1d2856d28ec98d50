// Package fingerprint derives the per-install identifier used to gate the
// one-time registration bonus.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rizztempo/rizztempo/internal/kvstore"
)

// StorageKey is where the fingerprint lives in the key-value store.
const StorageKey = "rizztempo:device_id"

// Attributes is the device and application metadata hashed into a fingerprint.
// Field order is the serialization order.
type Attributes struct {
	Brand              string `json:"brand"`
	Manufacturer       string `json:"manufacturer"`
	ModelName          string `json:"modelName"`
	ModelID            string `json:"modelId"`
	TotalMemory        uint64 `json:"totalMemory"`
	OSName             string `json:"osName"`
	OSVersion          string `json:"osVersion"`
	OSBuildID          string `json:"osBuildId"`
	DeviceName         string `json:"deviceName"`
	ApplicationID      string `json:"applicationId"`
	NativeAppVersion   string `json:"nativeApplicationVersion"`
	NativeBuildVersion string `json:"nativeBuildVersion"`
}

// Collector gathers Attributes for the running install.
type Collector interface {
	Collect(ctx context.Context) (Attributes, error)
}

// Generator returns the persisted fingerprint, creating it on first use.
type Generator struct {
	store     kvstore.Store
	collector Collector
	now       func() time.Time
	entropy   func() string
	logger    *log.Logger

	mu sync.Mutex
}

// NewGenerator wires a generator to its storage and attribute source.
func NewGenerator(store kvstore.Store, collector Collector) *Generator {
	return &Generator{
		store:     store,
		collector: collector,
		now:       time.Now,
		entropy:   uuid.NewString,
		logger:    log.New(log.Writer(), "[rizztempo/fingerprint] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (g *Generator) SetLogger(logger *log.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Fingerprint returns the install fingerprint. It never fails: storage and
// collection problems are logged and a fallback value is produced instead.
func (g *Generator) Fingerprint(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	stored, err := g.store.Get(ctx, StorageKey)
	if err == nil && strings.TrimSpace(stored) != "" {
		return stored
	}
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		g.logger.Printf("read stored fingerprint failed: %v", err)
	}

	fp, err := g.derive(ctx)
	if err != nil {
		g.logger.Printf("generating device fingerprint failed, using fallback: %v", err)
		fp = hash(fmt.Sprintf("%d-%s", g.now().UnixMilli(), g.entropy()))
	}
	if err := g.store.Set(ctx, StorageKey, fp); err != nil {
		g.logger.Printf("persist fingerprint failed: %v", err)
	}
	return fp
}

// Clear drops the persisted fingerprint so the next call regenerates it.
func (g *Generator) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("clear fingerprint: %w", err)
	}
	return nil
}

func (g *Generator) derive(ctx context.Context) (string, error) {
	if g.collector == nil {
		return "", errors.New("no attribute collector configured")
	}
	attrs, err := g.collector.Collect(ctx)
	if err != nil {
		return "", err
	}
	payload := struct {
		Attributes
		Timestamp int64 `json:"timestamp"`
	}{Attributes: attrs, Timestamp: g.now().UnixMilli()}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return hash(string(data)), nil
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
